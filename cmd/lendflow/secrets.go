package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/rendis/lendflow/internal/app"
)

var errVaultDisabled = errors.New("credential vault disabled: set LENDFLOW_VAULT_PASSPHRASE")

// openVaultApp opens the app and fails unless the credential vault is configured.
func openVaultApp(ctx context.Context, cmd *cli.Command) (*app.App, error) {
	a, _, err := openApp(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if a.Vault == nil {
		_ = a.Close()
		return nil, errVaultDisabled
	}
	return a, nil
}

func runSecretSet(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("credential name is required")
	}
	value := cmd.String("value")
	if !cmd.IsSet("value") {
		in := cmd.Root().Reader
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		value = strings.TrimRight(string(data), "\r\n")
	}
	if value == "" {
		return fmt.Errorf("credential value is empty")
	}

	a, err := openVaultApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Vault.Put(ctx, name, value)
}

func runSecretList(ctx context.Context, cmd *cli.Command) error {
	a, err := openVaultApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.Vault.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.Root().Writer, name)
	}
	return nil
}

func runSecretDelete(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("credential name is required")
	}
	a, err := openVaultApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Vault.Delete(ctx, name)
}
