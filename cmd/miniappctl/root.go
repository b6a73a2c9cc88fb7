package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	appID         string
	appSecret     string
	offerID       string
	paySecret     string
	baseURL       string
	timeoutMS     int
	debug         bool
	store         string
	storeDSN      string
	encryptionKey string
	rateLimit     float64
	rateBurst     int
	logLevel      string
	logFormat     string
	logFile       string
	output        string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "miniappctl",
		Short: "miniappctl calls the mini-program server API with managed credentials",
		Long: `
Usage: miniappctl <command> [options]

  miniappctl keeps the access token and user session keys in a local store
  and attaches them to server API calls.

  Settings come from MINIAPP_* environment variables and are overridden
  by flags:

      MINIAPP_APP_ID, MINIAPP_APP_SECRET, MINIAPP_OFFER_ID,
      MINIAPP_PAY_SECRET, MINIAPP_BASE_URL, MINIAPP_TIMEOUT_MS,
      MINIAPP_DEBUG, MINIAPP_STORE, MINIAPP_STORE_DSN,
      MINIAPP_ENCRYPTION_KEY

  Print the cached or freshly issued access token:

      $ miniappctl token

  Exchange a login code and store the session key:

      $ miniappctl login 0a3xYz
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.appID, "app-id", "", "Application id")
	pf.StringVar(&flags.appSecret, "app-secret", "", "Application secret")
	pf.StringVar(&flags.offerID, "offer-id", "", "Payment offer id")
	pf.StringVar(&flags.paySecret, "pay-secret", "", "Payment signing secret")
	pf.StringVar(&flags.baseURL, "base-url", "", "Platform base URL")
	pf.IntVar(&flags.timeoutMS, "timeout-ms", 0, "Per-call timeout in milliseconds")
	pf.BoolVar(&flags.debug, "debug", false, "Log request and response traces")
	pf.StringVar(&flags.store, "store", "", "Credential store: memory, file, sqlite or postgres (default file)")
	pf.StringVar(&flags.storeDSN, "store-dsn", "", "Directory for file, DSN for sqlite/postgres")
	pf.StringVar(&flags.encryptionKey, "encryption-key", "", "Encrypt stored credentials with this key")
	pf.Float64Var(&flags.rateLimit, "rate-limit", 0, "Client-side calls per second per path, 0 disables")
	pf.IntVar(&flags.rateBurst, "rate-burst", 1, "Client-side burst per path")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level")
	pf.StringVar(&flags.logFormat, "log-format", "console", "Log format (console or json)")
	pf.StringVar(&flags.logFile, "log-file", "", "Also write logs to this rotating file")
	pf.StringVarP(&flags.output, "output", "o", "table", "Output format (table or json)")

	root.AddCommand(
		newTokenCmd(flags),
		newLoginCmd(flags),
		newSessionCmd(flags),
		newRequestCmd(flags),
		newUploadCmd(flags),
		newPayCmd(flags),
	)
	return root
}
