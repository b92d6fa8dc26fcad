package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/docsign/cmd/cli/internal/profiles"
	"github.com/wolfeidau/docsign/internal/pki"
)

// ProfileCmd manages local identity profiles.
type ProfileCmd struct {
	List       ProfileListCmd       `cmd:"" help:"List all profiles"`
	Show       ProfileShowCmd       `cmd:"" help:"Show profile details"`
	Create     ProfileCreateCmd     `cmd:"" help:"Create a profile"`
	Delete     ProfileDeleteCmd     `cmd:"" help:"Delete a profile"`
	SetDefault ProfileSetDefaultCmd `cmd:"" name:"set-default" help:"Set the default profile"`
}

// ProfileListCmd lists all profiles.
type ProfileListCmd struct {
	ProfilesDir string `help:"Custom profiles directory"`
}

func (c *ProfileListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := profiles.NewStore(c.ProfilesDir)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No profiles found.")
		fmt.Println()
		fmt.Println("To create a new profile:")
		fmt.Println("  docsign profile create <name> --common-name <cn>")
		return nil
	}

	defaultName := ""
	if def, _ := store.GetDefault(); def != nil {
		defaultName = def.Name
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSUBJECT\tBITS\tDAYS\tDEFAULT")

	for _, p := range list {
		isDefault := ""
		if p.Name == defaultName {
			isDefault = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Identity.String(), orDefault(p.Bits), orDefault(p.Days), isDefault)
	}

	return w.Flush()
}

// ProfileShowCmd shows details of a profile.
type ProfileShowCmd struct {
	Name        string `arg:"" help:"Profile name"`
	ProfilesDir string `help:"Custom profiles directory"`
}

func (c *ProfileShowCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := profiles.NewStore(c.ProfilesDir)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}

	p, err := store.Get(c.Name)
	if err != nil {
		return profileError(c.Name, err)
	}

	fmt.Printf("Name:         %s\n", p.Name)
	fmt.Printf("Common Name:  %s\n", p.Identity.CommonName)
	fmt.Printf("Organization: %s\n", p.Identity.Organization)
	fmt.Printf("Locality:     %s\n", p.Identity.Locality)
	fmt.Printf("State:        %s\n", p.Identity.StateOrProvince)
	fmt.Printf("Country:      %s\n", p.Identity.Country)
	fmt.Printf("Bits:         %s\n", orDefault(p.Bits))
	fmt.Printf("Days:         %s\n", orDefault(p.Days))
	fmt.Printf("Created:      %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))

	return nil
}

// ProfileCreateCmd creates a profile.
type ProfileCreateCmd struct {
	Name         string `arg:"" help:"Profile name"`
	CommonName   string `help:"Certificate common name" required:""`
	Country      string `help:"Two letter country code"`
	State        string `help:"State or province"`
	Locality     string `help:"Locality or city"`
	Organization string `help:"Organization name"`
	Bits         int    `help:"RSA key size: 1024, 2048 or 4096"`
	Days         int    `help:"Certificate validity in days"`
	Default      bool   `help:"Make this the default profile"`
	ProfilesDir  string `help:"Custom profiles directory"`
}

func (c *ProfileCreateCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := profiles.NewStore(c.ProfilesDir)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}

	id, err := pki.NewIdentity(c.Country, c.State, c.Locality, c.Organization, c.CommonName)
	if err != nil {
		return err
	}

	p, err := store.Create(profiles.Profile{Name: c.Name, Identity: id, Bits: c.Bits, Days: c.Days})
	if err != nil {
		if errors.Is(err, profiles.ErrProfileExists) {
			return fmt.Errorf("profile %q already exists", c.Name)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	if c.Default {
		if err := store.SetDefault(p.Name); err != nil {
			return err
		}
	}

	fmt.Printf("Profile %q created for %s.\n", p.Name, p.Identity.String())
	return nil
}

// ProfileDeleteCmd deletes a profile.
type ProfileDeleteCmd struct {
	Name        string `arg:"" help:"Profile name"`
	ProfilesDir string `help:"Custom profiles directory"`
}

func (c *ProfileDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := profiles.NewStore(c.ProfilesDir)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}

	if err := store.Delete(c.Name); err != nil {
		return profileError(c.Name, err)
	}

	fmt.Printf("Profile %q deleted.\n", c.Name)
	return nil
}

// ProfileSetDefaultCmd sets the default profile.
type ProfileSetDefaultCmd struct {
	Name        string `arg:"" help:"Profile name"`
	ProfilesDir string `help:"Custom profiles directory"`
}

func (c *ProfileSetDefaultCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := profiles.NewStore(c.ProfilesDir)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}

	if err := store.SetDefault(c.Name); err != nil {
		return profileError(c.Name, err)
	}

	fmt.Printf("Default profile set to %q.\n", c.Name)
	return nil
}

func profileError(name string, err error) error {
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return fmt.Errorf("profile %q not found\n\nRun 'docsign profile list' to see available profiles", name)
	}
	return err
}

func orDefault(n int) string {
	if n == 0 {
		return "default"
	}
	return fmt.Sprint(n)
}
