package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/totem/internal/api/middleware"
)

// Usage:
//
//	go run ./cmd/genkey          # new random kiosk key
//	go run ./cmd/genkey <key>    # hash an existing key
func main() {
	key := ""
	if len(os.Args) > 1 {
		key = os.Args[1]
	} else {
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		key = "totem_" + hex.EncodeToString(buf)
	}

	fmt.Printf("KIOSK_API_KEY=%s\nKIOSK_API_KEY_HASH=%s\n", key, middleware.HashAPIKey(key))
}
