package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/auth"
	"github.com/abdul-hamid-achik/hitflow/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitflow project",
	Long: `Initialize a new hitflow project in the current directory.

This creates:
  - hitflow.yaml   - Configuration file with environments and strategies
  - example.http   - Example request file

Examples:
  hitflow init
  hitflow init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleRequests = `### Health check
# @name health
## RETRY-UNTIL-STATUS: [200]
## TEST-EXPECT-STATUS: [200]
GET {{baseUrl}}/health
Accept: application/json
X-Request-Id: {{$uuid}}

### Login
# @name login
## RETRY-STRATEGY: patient
## TEST-HAS-BODY
POST {{baseUrl}}/login
Content-Type: application/json

{"username": "{{username}}", "password": "{{password}}"}

### Current user
# @name me
## AUTH-PROVIDER: api
## RETRY-MAX-ATTEMPTS: 2
## RETRY-DELAY: 00:00:00.500
## TEST-EXPECT-STATUS: [200]
## TEST-HAS-HEADER: Content-Type
GET {{baseUrl}}/me
X-Session: {{login.response.body.$.session}}
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	exampleFile := filepath.Join(cwd, "example.http")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	attempts := 5
	cfg := config.DefaultConfig()
	cfg.DefaultEnvironment = "dev"
	cfg.Headers = map[string]string{"User-Agent": "hitflow/" + version}
	cfg.Variables.Global = map[string]any{"username": "demo", "password": "demo", "apiToken": "change-me"}
	cfg.Environments = map[string]map[string]any{
		"dev":     {"baseUrl": "http://localhost:3000"},
		"staging": {"baseUrl": "https://staging.api.example.com"},
		"prod":    {"baseUrl": "https://api.example.com"},
	}
	cfg.RetryStrategies = map[string]config.RetryStrategy{
		"patient": {
			MaxAttempts:   &attempts,
			Backoff:       "exponential",
			Delay:         config.Duration(500 * time.Millisecond),
			MaxDelay:      config.Duration(10 * time.Second),
			Jitter:        true,
			RetryOnStatus: []int{429, 502, 503, 504},
		},
	}
	cfg.AuthProviders = map[string]auth.Settings{
		"api": {Type: "bearer", Token: "{{apiToken}}"},
	}

	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleRequests), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitflow project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitflow run example.http' to execute the example requests.\n")
	return nil
}
