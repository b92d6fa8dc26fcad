package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/docsign/internal/pki"
)

// ChainCmd groups chain commands.
type ChainCmd struct {
	Verify ChainVerifyCmd `cmd:"" help:"Check that a PEM chain links a leaf to a self-signed root"`
}

// ChainVerifyCmd walks a PEM bundle from leaf to root.
type ChainVerifyCmd struct {
	File string `arg:"" help:"PEM file holding the chain, leaf or root first" type:"existingfile"`
}

func (c *ChainVerifyCmd) Run(ctx context.Context, globals *Globals) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read chain: %w", err)
	}

	chain, err := pki.ParseChainPEM(data)
	if err != nil {
		return err
	}

	if err := chain.Walk(); err != nil {
		return err
	}

	for _, cert := range chain {
		fmt.Printf("%s  %s (expires %s)\n",
			cert.SerialHex(), cert.Subject.String(), cert.NotAfter.Format(time.DateOnly))
	}
	fmt.Println("chain ok")
	return nil
}
