// Command tokengen mints signed connection tokens for development and
// operations. The relay itself never issues tokens; it only verifies them.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/openfleet/location-relay/internal/model"
	"github.com/openfleet/location-relay/internal/token"
)

func main() {
	secret := flag.String("secret", os.Getenv("RELAY_AUTH_SECRET"), "HMAC secret (defaults to $RELAY_AUTH_SECRET)")
	subject := flag.String("subject", "", "stable identity of the holder, e.g. driver:42")
	role := flag.String("role", string(model.RoleSubscriber), "publisher, subscriber, or admin")
	entity := flag.String("entity", "", "entity the token is bound to; empty leaves it unconstrained")
	tenant := flag.String("tenant", "", "tenant identifier")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "error: -secret or $RELAY_AUTH_SECRET is required")
		os.Exit(2)
	}
	if *subject == "" {
		fmt.Fprintln(os.Stderr, "error: -subject is required")
		os.Exit(2)
	}
	if !model.Role(*role).Valid() {
		fmt.Fprintf(os.Stderr, "error: invalid role %q\n", *role)
		os.Exit(2)
	}

	tok, err := token.Sign([]byte(*secret), token.Payload{
		Subject:   *subject,
		Role:      model.Role(*role),
		EntityID:  *entity,
		TenantID:  *tenant,
		ExpiresAt: time.Now().Add(*ttl).Unix(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(tok)
}
