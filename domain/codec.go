package domain

import "github.com/bytedance/sonic"

// Encode serializes the board document.
func (b Board) Encode() ([]byte, error) {
	return sonic.ConfigStd.Marshal(normalize(b.Clone()))
}

// Decode parses a board document. Missing or null item lists decode as empty.
func Decode(data []byte) (Board, error) {
	var b Board
	if err := sonic.ConfigStd.Unmarshal(data, &b); err != nil {
		return Board{}, err
	}
	return normalize(b), nil
}
