package main

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"firefly/internal/identity"
)

func (a *app) newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address [public-key-hex]",
		Short: "Print the wallet address of a public key",
		Long:  "Print the wallet address of a public key. Without an argument the key of FIREFLY_SERVICE_KEY is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.publicKey(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.AddressFromPublicKey(key))
			return nil
		},
	}
}

func (a *app) newURICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uri [public-key-hex]",
		Short: "Print the rho:id uri of a public key",
		Long:  "Print the rho:id uri of a public key. Without an argument the key of FIREFLY_SERVICE_KEY is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.publicKey(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), identity.URIFromPublicKey(key))
			return nil
		},
	}
}

func (a *app) publicKey(args []string) (*secp256k1.PublicKey, error) {
	if len(args) == 1 {
		return identity.ParsePublicKeyHex(args[0])
	}

	key, err := a.cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	return key.PubKey(), nil
}
