package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"crosspay.facilitator/pkg/jwt"
)

// admin-token mints a bearer token for the admin bridge-job API.
//
//	go run ./cmd/admin-token -subject ops@example.com -ttl 24h
func main() {
	subject := flag.String("subject", "admin", "token subject")
	role := flag.String("role", "admin", "token role")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		log.Fatal("ADMIN_JWT_SECRET is not set")
	}

	svc := jwt.NewJWTService(secret, *ttl)
	token, err := svc.GenerateToken(*subject, *role)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "expires:", time.Now().Add(*ttl).Format(time.RFC3339))
}
