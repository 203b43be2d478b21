// Command issuetoken prints an access token signed with AUTH_JWT_SECRET for
// local testing against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/model"
)

func main() {
	subject := flag.String("sub", "dev-user", "token subject")
	email := flag.String("email", "dev@example.com", "email claim")
	groups := flag.String("groups", model.GroupManager, "comma-separated groups")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	var groupList []string
	for _, g := range strings.Split(*groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groupList = append(groupList, g)
		}
	}

	manager := auth.NewJWTManager(secret, os.Getenv("AUTH_JWT_ISSUER"))
	token, err := manager.Issue(*subject, *email, groupList, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
