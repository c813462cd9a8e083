package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"idmigrate/internal/config"
	"idmigrate/internal/identity"
)

func main() {
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	frontend := identity.NewFrontendClient(cfg.HostedFrontendURL, nil)
	restore := identity.InstallRetry(frontend.HTTPClient(), cfg.ProvisionURL, logger)
	defer restore()

	email := prompt(reader, "Email: ")
	password := prompt(reader, "Password: ")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	attempt, err := frontend.StartSignIn(ctx, email)
	if err != nil {
		var statusErr *identity.StatusError
		if errors.As(err, &statusErr) {
			log.Fatalf("sign in rechazado (status %d): %s", statusErr.StatusCode, statusErr.Body)
		}
		log.Fatalf("sign in: %v", err)
	}

	if attempt.Status != identity.SignInStatusComplete {
		attempt, err = frontend.AttemptPassword(ctx, attempt.ID, password)
		if err != nil {
			log.Fatalf("password: %v", err)
		}
	}
	if attempt.Status != identity.SignInStatusComplete {
		log.Fatalf("sign in incompleto: status=%s", attempt.Status)
	}

	fmt.Printf("Sesion creada: %s\n", attempt.CreatedSessionID)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("leer entrada: %v", err)
	}
	return strings.TrimSpace(line)
}
