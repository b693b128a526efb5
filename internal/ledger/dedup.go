package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// DedupKey es la clave compuesta de deduplicación de un fill canónico:
// (tx, wallet, timestamp, side, shares, price, value, mercado, outcome).
// Un único "trade id" no sirve: una transacción puede producir varios fills
// legítimos con el mismo id y timestamp pero distinto tamaño o precio.
func DedupKey(f domain.Fill) string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(f.TxHash))
	sb.WriteByte('|')
	sb.WriteString(f.Wallet.String())
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(f.Timestamp.UnixNano(), 10))
	sb.WriteByte('|')
	sb.WriteString(string(f.Side))
	sb.WriteByte('|')
	sb.WriteString(f.Shares.String())
	sb.WriteByte('|')
	sb.WriteString(f.Price.String())
	sb.WriteByte('|')
	sb.WriteString(f.Value.String())
	sb.WriteByte('|')
	sb.WriteString(f.ConditionID.String())
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(f.OutcomeIndex))
	return sb.String()
}

// FillID deriva un ID estable a partir de la clave compuesta.
func FillID(f domain.Fill) string {
	sum := sha256.Sum256([]byte(DedupKey(f)))
	return hex.EncodeToString(sum[:16])
}

// Dedup elimina duplicados exactos por DedupKey. Ante duplicados se queda con
// la fila ingerida más recientemente (mayor IngestSeq; a igualdad, la última
// de la entrada). Devuelve los fills supervivientes en el orden de entrada
// y cuántos se descartaron.
func Dedup(fills []domain.Fill) ([]domain.Fill, int) {
	winner := make(map[string]int, len(fills))
	for i, f := range fills {
		k := DedupKey(f)
		if j, ok := winner[k]; ok && fills[j].IngestSeq > f.IngestSeq {
			continue
		}
		winner[k] = i
	}

	out := make([]domain.Fill, 0, len(winner))
	for i, f := range fills {
		if winner[DedupKey(f)] == i {
			out = append(out, f)
		}
	}
	return out, len(fills) - len(out)
}
