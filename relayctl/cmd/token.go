package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/security"
)

func init() {
	register("mint-token", &mintTokenCmd{})
}

type mintTokenCmd struct {
	secret string
	issuer string
	login  string
	uid    int64
	role   string
	ttl    time.Duration
}

func (mintTokenCmd) desc() string { return "issue an access token for development" }

func (mintTokenCmd) usage() string {
	return "mint-token --login=<login id> --uid=<user id> [--role=USER] [--ttl=1h]"
}

func (mintTokenCmd) longdesc() string {
	return `
	Issue an access token signed with the configured secret, for driving a
	relay by hand. The token is printed in the form expected by the token
	query parameter of the streaming endpoint.
`[1:]
}

func (cmd *mintTokenCmd) flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("mint-token", pflag.ContinueOnError)
	flags.StringVar(&cmd.secret, "auth-secret", backend.Config.Auth.Secret, "base64 HS256 token secret")
	flags.StringVar(&cmd.issuer, "auth-issuer", backend.Config.Auth.Issuer, "token issuer")
	flags.StringVar(&cmd.login, "login", "", "login id")
	flags.Int64Var(&cmd.uid, "uid", 0, "user id")
	flags.StringVar(&cmd.role, "role", "USER", "role claim")
	flags.DurationVar(&cmd.ttl, "ttl", backend.Config.Auth.AccessTTL, "token lifetime")
	return flags
}

func (cmd *mintTokenCmd) run(ctx context.Context, args []string) error {
	if cmd.secret == "" {
		return fmt.Errorf("mint-token: --auth-secret is required")
	}
	if cmd.login == "" || cmd.uid == 0 {
		return fmt.Errorf("mint-token: --login and --uid are required")
	}

	issuer, err := security.NewJWT(cmd.secret, cmd.issuer, cmd.ttl)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(cmd.uid, cmd.login, cmd.role)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Bearer %s\n", token)
	return nil
}
