package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/quillnote/core/internal/cryptox"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts the user for a username and passphrase and creates a new
// account. The master key pair is generated locally; the service never sees
// the passphrase or any plaintext key material.
//
// On success it prints "Success!" and returns nil. The passphrase byte slice
// is wiped before returning.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	passphrase, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(passphrase)

	user, err := a.engine.Join(ctx, userName, string(passphrase))
	if err != nil {
		log.Printf("Registration unsuccessful: %s", err.Error())
		return err
	}

	a.userName = user.Username
	fmt.Println("Success!")
	return nil
}

// Login prompts for credentials and unlocks the engine. The passphrase is
// wiped before returning.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	passphrase, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(passphrase)

	user, err := a.engine.Login(ctx, userName, string(passphrase))
	if err != nil {
		log.Printf("Login unsuccessful: %s", err.Error())
		return err
	}

	a.userName = user.Username
	log.Printf("Login successful")
	return nil
}
