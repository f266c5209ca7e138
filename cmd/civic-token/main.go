// civic-token mints development bearer tokens for the gateway.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"civicledger/core/auth"
	"civicledger/core/config"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file holding CIVIC_JWT_SECRET")
	subject := flag.String("sub", "", "subject (user id)")
	role := flag.String("role", auth.RoleCitizen, "role: citizen|officer|chairman")
	msp := flag.String("msp", "Org1MSP", "organization MSP id")
	locale := flag.String("locale", "", "preferred message locale (en, vi)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *subject == "" {
		log.Fatalf("Usage: %s -sub <id> [-role officer] [-msp Org1MSP]", os.Args[0])
	}
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal(err)
	}
	id := auth.NewIdentity(*subject, *msp, *role)
	if *locale != "" {
		id = id.WithAttribute("locale", *locale)
	}
	token, err := auth.IssueToken([]byte(cfg.JWTSecret), cfg.JWTIssuer, id, *ttl, time.Now())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
