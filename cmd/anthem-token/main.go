// Command anthem-token mints an access/refresh token pair for a client
// using the JWT_SECRET of the running hub.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/strefethen/anthem-hub-go/internal/auth"
	"github.com/strefethen/anthem-hub-go/internal/config"
)

func main() {
	clientName := flag.String("client", "anthem-cli", "client name embedded in the token")
	scopeFlag := flag.String("scope", string(auth.ScopeControl), "monitor (read and stream) or control (also send commands)")
	receiversFlag := flag.String("receivers", "", "comma-separated receiver ids to grant (default: all)")
	flag.Parse()

	scope, err := auth.ParseScope(*scopeFlag)
	if err != nil {
		log.Fatalf("flag error: %v", err)
	}
	var receivers []string
	for _, id := range strings.Split(*receiversFlag, ",") {
		if id = strings.TrimSpace(id); id != "" {
			receivers = append(receivers, id)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatalf("JWT_SECRET must be at least 32 characters")
	}

	tokens, err := auth.GenerateTokenPair(cfg, auth.TokenPayload{
		Sub:        uuid.New().String(),
		ClientName: *clientName,
		Scope:      scope,
		Receivers:  receivers,
	})
	if err != nil {
		log.Fatalf("token error: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(map[string]any{
		"access_token":   tokens.AccessToken,
		"refresh_token":  tokens.RefreshToken,
		"expires_in_sec": tokens.ExpiresInSec,
		"scope":          scope,
		"receivers":      receivers,
	}); err != nil {
		log.Fatalf("encode error: %v", err)
	}
}
