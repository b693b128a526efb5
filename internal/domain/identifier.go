package domain

import (
	"fmt"
	"strings"
)

const (
	conditionIDHexLen = 64
	walletHexLen      = 40
)

// ConditionID es el identificador canónico de un mercado: 64 caracteres hex
// en minúsculas, sin prefijo "0x". Solo se construye con NormalizeConditionID;
// todo join interno compara ConditionID, nunca strings crudos.
type ConditionID string

// NormalizeConditionID canonicaliza un identificador de mercado de cualquier
// fuente (con o sin "0x", mayúsculas, espacios). Rechaza valores vacíos, de
// longitud distinta a 64 hex o placeholders todo-cero con ErrMissingIdentifier.
func NormalizeConditionID(raw string) (ConditionID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")

	if s == "" {
		return "", fmt.Errorf("%w: empty market id", ErrMissingIdentifier)
	}
	if len(s) != conditionIDHexLen {
		return "", fmt.Errorf("%w: market id %q has %d hex chars, want %d",
			ErrMissingIdentifier, raw, len(s), conditionIDHexLen)
	}
	if !isHex(s) {
		return "", fmt.Errorf("%w: market id %q is not hex", ErrMissingIdentifier, raw)
	}
	if strings.Trim(s, "0") == "" {
		return "", fmt.Errorf("%w: placeholder market id %q", ErrMissingIdentifier, raw)
	}
	return ConditionID(s), nil
}

// MustConditionID es NormalizeConditionID para constantes y tests.
func MustConditionID(raw string) ConditionID {
	id, err := NormalizeConditionID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (c ConditionID) String() string { return string(c) }

// Hex devuelve el id con prefijo "0x", el formato que esperan las APIs de Polymarket.
func (c ConditionID) Hex() string { return "0x" + string(c) }

// Short devuelve un prefijo legible para logs y tablas.
func (c ConditionID) Short() string {
	if len(c) <= 10 {
		return string(c)
	}
	return string(c[:10]) + "..."
}

// Wallet es una dirección de wallet canónica: "0x" + 40 hex en minúsculas.
type Wallet string

// NormalizeWallet canonicaliza una dirección. Acepta el valor con o sin "0x".
func NormalizeWallet(raw string) (Wallet, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != walletHexLen || !isHex(s) {
		return "", fmt.Errorf("%w: invalid wallet address %q", ErrDataIntegrity, raw)
	}
	return Wallet("0x" + s), nil
}

// MustWallet es NormalizeWallet para constantes y tests.
func MustWallet(raw string) Wallet {
	w, err := NormalizeWallet(raw)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Wallet) String() string { return string(w) }

// Short devuelve 0x1234…abcd para tablas.
func (w Wallet) Short() string {
	if len(w) < 12 {
		return string(w)
	}
	return string(w[:6]) + "…" + string(w[len(w)-4:])
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
