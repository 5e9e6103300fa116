// Команда keyhash печатает bcrypt-хэш административного ключа для security.admin_key_hash.
//
//	go run ./cmd/keyhash -key "$ADMIN_KEY"
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/magabrotheeeer/paywall/internal/lib/password"
)

func main() {
	key := flag.String("key", os.Getenv("ADMIN_KEY"), "administrative key to hash")
	flag.Parse()

	if *key == "" {
		log.Fatal("key is required: pass -key or set ADMIN_KEY")
	}
	hash, err := password.GetHash(*key)
	if err != nil {
		log.Fatalf("cannot hash key: %s", err)
	}
	fmt.Println(hash)
}
