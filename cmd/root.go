/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blacktop/rpost/internal/config"
	"github.com/blacktop/rpost/internal/logutil"
	"github.com/blacktop/rpost/internal/rpost"
	"github.com/blacktop/rpost/internal/rpost/input"
	"github.com/blacktop/rpost/internal/rpost/reddit"
	"github.com/blacktop/rpost/internal/rpost/submit"
)

var (
	maxRetries uint
	maxWait    time.Duration
	rateLimit  float64
	dryRun     bool
	verbose    bool
)

var credentialInputs = []input.Input{
	{Name: "username", Prompt: "Reddit username"},
	{Name: "password", Prompt: "Reddit password", Sensitive: true},
	{Name: "client-id", Prompt: "OAuth client ID"},
	{Name: "client-secret", Prompt: "OAuth client secret", Sensitive: true},
}

var postingInputs = []input.Input{
	{Name: "kind", Prompt: "Post kind (link or text)"},
	{Name: "title", Prompt: "Post title"},
	{Name: "subreddits", Prompt: "Subreddits (comma-separated)"},
}

var contentInputs = map[rpost.Kind]input.Input{
	rpost.KindLink: {Name: "url", Prompt: "Link URL"},
	rpost.KindText: {Name: "text", Prompt: "Post body"},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rpost",
		Short: "Submit posts to one or more subreddits",
		Long: "rpost logs in with Reddit script-app credentials and submits a link or text post " +
			"to each listed subreddit in order, waiting out Reddit's rate limits between attempts. " +
			"Any value not given as a flag is read from RPOST_<NAME> or prompted for.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  rpost -k link -t "Go 1.25 is out" --url https://go.dev/blog -s golang,programming
  RPOST_USERNAME=me RPOST_CLIENT_ID=abc rpost -k text -t "Weekly thread" -b "Say hi" -s mysub
  rpost --dry-run -k link -t "Preview" --url https://example.com -s a,b,c`,
	}

	addCredentialFlags(cmd.Flags())
	cmd.Flags().StringP("kind", "k", "", "Post kind: link or text")
	cmd.Flags().StringP("title", "t", "", "Post title")
	cmd.Flags().StringP("text", "b", "", "Body for text posts")
	cmd.Flags().String("url", "", "URL for link posts")
	cmd.Flags().StringP("subreddits", "s", "", "Comma-separated list of subreddits to post to")
	cmd.Flags().UintVar(&maxRetries, "max-retries", 0, "Give up on a subreddit after this many rate-limit retries (0 = never)")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "Give up on a subreddit after this much time (0 = never)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", reddit.DefaultRequestsPerMinute, "Pace submissions to this many per minute (0 = no pacing; Reddit allows 60)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the posts that would be submitted without logging in")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func addCredentialFlags(flags *pflag.FlagSet) {
	flags.StringP("username", "u", "", "Reddit account name")
	flags.StringP("password", "p", "", "Reddit account password")
	flags.String("client-id", "", "OAuth client ID of the script app")
	flags.String("client-secret", "", "OAuth client secret of the script app")
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logutil.SetVerbose(verbose)

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	sources := newSources(cmd)
	reqs, err := resolvePostings(ctx, sources)
	if err != nil {
		return err
	}

	if dryRun {
		for _, req := range reqs {
			fmt.Fprintf(cmd.OutOrStdout(), "[dry-run] would submit %s post to r/%s: %q (%s)\n",
				req.Kind, req.Target, req.Title, contentOf(req))
		}
		return nil
	}

	token, err := acquireToken(ctx, sources, settings)
	if err != nil {
		return err
	}

	client := reddit.NewClient(
		reddit.WithSubmitURL(settings.SubmitURL),
		reddit.WithUserAgent(settings.UserAgent),
		reddit.WithRequestsPerMinute(settings.RequestsPerMinute),
	)
	engine := submit.New(client, token,
		submit.WithMaxRetries(settings.MaxRetries),
		submit.WithMaxWait(settings.MaxWait),
	)

	outcomes, runErr := engine.Run(ctx, reqs)
	renderSummary(cmd.OutOrStdout(), outcomes)
	if runErr != nil {
		return fmt.Errorf("submission interrupted: %w", runErr)
	}
	return nil
}

// loadSettings layers explicitly set flags over the environment configuration.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return config.Settings{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("max-retries") {
		settings.MaxRetries = maxRetries
	}
	if flags.Changed("max-wait") {
		if maxWait < 0 {
			return config.Settings{}, errors.New("--max-wait must not be negative")
		}
		settings.MaxWait = maxWait
	}
	if flags.Changed("rate-limit") {
		settings.RequestsPerMinute = rateLimit
	}
	return settings, nil
}

func newSources(cmd *cobra.Command) input.Sources {
	set := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		set[f.Name] = f.Value.String()
	})
	return input.Sources{
		Flags:     set,
		LookupEnv: os.LookupEnv,
		Prompter:  input.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()),
	}
}

func resolvePostings(ctx context.Context, sources input.Sources) ([]rpost.PostingRequest, error) {
	values, err := input.Resolve(ctx, postingInputs, sources)
	if err != nil {
		return nil, err
	}

	kind, err := rpost.ParseKind(values.Get("kind"))
	if err != nil {
		return nil, err
	}
	contentInput := contentInputs[kind]
	content, err := input.Resolve(ctx, []input.Input{contentInput}, sources)
	if err != nil {
		return nil, err
	}
	values = values.Merge(content)

	targets, err := rpost.ParseTargets(values.Get("subreddits"))
	if err != nil {
		return nil, err
	}

	reqs := make([]rpost.PostingRequest, 0, len(targets))
	for _, target := range targets {
		req, err := rpost.NewPostingRequest(target, kind, values.Get("title"), values.Get(contentInput.Name))
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func resolveCredentials(ctx context.Context, sources input.Sources) (rpost.Credentials, error) {
	values, err := input.Resolve(ctx, credentialInputs, sources)
	if err != nil {
		return rpost.Credentials{}, err
	}
	creds := rpost.Credentials{
		Username:     values.Get("username"),
		Password:     values.Get("password"),
		ClientID:     values.Get("client-id"),
		ClientSecret: values.Get("client-secret"),
	}
	if err := creds.Validate(); err != nil {
		return rpost.Credentials{}, err
	}
	for _, in := range credentialInputs {
		logutil.Debugf("%s resolved from %s", in.Name, values.Source(in.Name))
	}
	return creds, nil
}

func acquireToken(ctx context.Context, sources input.Sources, settings config.Settings) (string, error) {
	creds, err := resolveCredentials(ctx, sources)
	if err != nil {
		return "", err
	}
	auth, err := reddit.NewAuthenticator(creds,
		reddit.WithTokenURL(settings.TokenURL),
		reddit.WithAuthUserAgent(settings.UserAgent),
	)
	if err != nil {
		return "", err
	}
	logutil.Infof("logging in as %s", creds.Username)
	return auth.Token(ctx)
}

func contentOf(req rpost.PostingRequest) string {
	if req.Kind == rpost.KindLink {
		return req.URL
	}
	return fmt.Sprintf("%d characters of text", len(req.Body))
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Log in and print a bearer token",
		Long:  "token resolves the account and app credentials, performs the password grant and prints the access token to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logutil.SetVerbose(verbose)
			settings, err := config.Load()
			if err != nil {
				return err
			}
			token, err := acquireToken(cmd.Context(), newSources(cmd), settings)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), token+"\n")
			return err
		},
	}
	addCredentialFlags(cmd.Flags())
	return cmd
}
