package envelope

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	messageIDAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	messageIDSuffixLen = 16
)

var messageIDAlphabetLen = big.NewInt(int64(len(messageIDAlphabet)))

// NewMessageID returns "<epoch millis>_<16 random alphanumerics>". Uniqueness
// is probabilistic and the id is not a replay guard.
func NewMessageID() (string, error) {
	suffix := make([]byte, messageIDSuffixLen)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, messageIDAlphabetLen)
		if err != nil {
			return "", fmt.Errorf("%w: failed to generate message id: %s", ErrCryptoUnsupported, err)
		}
		suffix[i] = messageIDAlphabet[n.Int64()]
	}

	return fmt.Sprintf("%d_%s", clock.now().UnixMilli(), suffix), nil
}
