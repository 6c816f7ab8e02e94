package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treenteq/harbor/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long: `Generate the OpenAPI 3.1 specification for the Harbor API, covering the
quote, redemption, session, and key management endpoints.`,
		Example: `  harbor openapi                # print spec to stdout
  harbor openapi -o spec.json   # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(outputFile string) error {
	spec := openapi.Generate()

	b, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, b, 0644); err != nil {
			return fmt.Errorf("write spec: %w", err)
		}
		fmt.Printf("Wrote OpenAPI spec to %s\n", outputFile)
		return nil
	}

	fmt.Println(string(b))
	return nil
}
