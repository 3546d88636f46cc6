// Command genkey prints a random API key for the keys file.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
)

func main() {
	n := flag.Int("bytes", 16, "random bytes per key; the key is twice as many hex characters")
	flag.Parse()

	key, err := newKey(*n)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(key)
}

func newKey(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("bytes must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
