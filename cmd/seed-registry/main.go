// Command seed-registry fills a running registry with example groups,
// resources and versions through the HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/catalogd/registry/internal/model"
	"github.com/catalogd/registry/pkg/client"
)

type schemaSeed struct {
	group, id, description string
	versions               []string
}

var schemaSeeds = []schemaSeed{
	{"orders", "order-created", "Order creation payload", []string{
		`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"id":{"type":"string"},"total":{"type":"number"}},"required":["id"]}`,
	}},
	{"orders", "order-shipped", "Shipment notice", []string{
		`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"carrier":{"type":"string"}}}`,
	}},
	{"billing", "invoice", "Invoice document", []string{
		`{"$schema":"http://json-schema.org/draft-07/schema#","type":"object"}`,
	}},
}

var endpointSeeds = []string{"orders", "billing"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr    string
		token   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:           "seed-registry",
		Short:         "Fill a registry with example schemas, definitions and endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := client.NewClient(addr, client.WithAuthToken(token), client.WithUserAgent("seed-registry"))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to create client: %v\n", err)
				return err
			}
			defer c.Close()

			if ready, err := c.ReadinessCheck(ctx); err != nil || !ready {
				fmt.Fprintf(cmd.ErrOrStderr(), "Registry at %s is not ready (err=%v)\n", addr, err)
				return fmt.Errorf("registry not ready")
			}

			s := &seeder{client: c, addr: strings.TrimRight(addr, "/"), out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			if failed := s.run(ctx); failed > 0 {
				fmt.Fprintf(s.errOut, "\n%d step(s) failed\n", failed)
				return fmt.Errorf("%d step(s) failed", failed)
			}
			fmt.Fprintf(s.out, "\nDone! Browse the catalog at %s/registry/?inline\n", s.addr)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Registry server address")
	cmd.Flags().StringVar(&token, "token", os.Getenv("REGISTRY_TOKEN"), "Bearer token")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	return cmd
}

type seeder struct {
	client *client.Client
	addr   string
	out    io.Writer
	errOut io.Writer
}

// run seeds everything and returns the number of failed steps
func (s *seeder) run(ctx context.Context) int {
	return s.schemas(ctx) + s.definitions(ctx) + s.endpoints(ctx)
}

func (s *seeder) fail(format string, args ...any) int {
	fmt.Fprintf(s.errOut, format+"\n", args...)
	return 1
}

// schemas creates the JSON Schema resources and posts their versions. The
// versions are JSON, so a server without a blob store keeps them inline.
func (s *seeder) schemas(ctx context.Context) (failed int) {
	fmt.Fprintln(s.out, "Creating schemas...")
	for _, seed := range schemaSeeds {
		schema := &model.Schema{Resource: model.Resource{Description: seed.description}}
		if err := schema.SetExtension("format", "JsonSchema/draft-07"); err != nil {
			failed += s.fail("Failed to set format: %v", err)
			continue
		}
		if _, err := s.client.SchemaGroups.PutResource(ctx, seed.group, seed.id, schema); err != nil {
			failed += s.fail("Failed to create schema %s/%s: %v", seed.group, seed.id, err)
			continue
		}
		fmt.Fprintf(s.out, "Created schema: %s/%s\n", seed.group, seed.id)

		for _, body := range seed.versions {
			v, err := s.client.SchemaGroups.PostVersion(ctx, seed.group, seed.id, strings.NewReader(body),
				client.WithCreatedBy("seed-registry"))
			if err != nil {
				failed += s.fail("  Failed to add version to %s/%s: %v", seed.group, seed.id, err)
				continue
			}
			fmt.Fprintf(s.out, "  Added version %s\n", v.ID)
		}
	}
	return failed
}

// definitions creates one CloudEvents definition per schema
func (s *seeder) definitions(ctx context.Context) (failed int) {
	fmt.Fprintln(s.out, "Creating definitions...")
	for _, seed := range schemaSeeds {
		def := &model.Definition{Resource: model.Resource{Description: seed.description}}
		if err := def.SetExtension("format", "CloudEvents/1.0"); err != nil {
			failed += s.fail("Failed to set format: %v", err)
			continue
		}
		if err := def.SetExtension("metadata", map[string]any{
			"type":       map[string]string{"value": "com.example." + seed.group + "." + seed.id},
			"dataschema": map[string]string{"value": s.addr + "/registry/schemagroups/" + seed.group + "/schemas/" + seed.id},
		}); err != nil {
			failed += s.fail("Failed to set metadata: %v", err)
			continue
		}
		if _, err := s.client.Groups.PutResource(ctx, seed.group, seed.id, def); err != nil {
			failed += s.fail("Failed to create definition %s/%s: %v", seed.group, seed.id, err)
			continue
		}
		fmt.Fprintf(s.out, "Created definition: %s/%s\n", seed.group, seed.id)
	}
	return failed
}

// endpoints creates one producer endpoint per group
func (s *seeder) endpoints(ctx context.Context) (failed int) {
	fmt.Fprintln(s.out, "Creating endpoints...")
	for _, group := range endpointSeeds {
		ep := &model.Endpoint{Resource: model.Resource{Description: group + " events"}}
		if err := ep.SetExtension("usage", "producer"); err != nil {
			failed += s.fail("Failed to set usage: %v", err)
			continue
		}
		if err := ep.SetExtension("config", map[string]any{
			"protocol": "KAFKA",
			"topic":    group + "-events",
		}); err != nil {
			failed += s.fail("Failed to set config: %v", err)
			continue
		}
		if _, err := s.client.Endpoints.PutGroup(ctx, group, ep); err != nil {
			failed += s.fail("Failed to create endpoint %s: %v", group, err)
			continue
		}
		fmt.Fprintf(s.out, "Created endpoint: %s\n", group)
	}
	return failed
}
