// Copyright 2026 The AppForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// forgectl is a thin CLI over the appforge HTTP API. Server address and
// token come from APPFORGE_SERVER and APPFORGE_TOKEN.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	server string
	token  string
	http   *http.Client
}

func newClient() *client {
	server := os.Getenv("APPFORGE_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	return &client{
		server: strings.TrimRight(server, "/"),
		token:  os.Getenv("APPFORGE_TOKEN"),
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(method, path string, body any) (json.RawMessage, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.server+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &e) == nil {
			if e.Message != "" {
				return nil, fmt.Errorf("%s", e.Message)
			}
			if e.Error != "" {
				return nil, fmt.Errorf("%s", e.Error)
			}
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return data, nil
}

func printJSON(data json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.String())
	return nil
}

func main() {
	c := newClient()

	rootCmd := &cobra.Command{
		Use:   "forgectl",
		Short: "AppForge deployment engine CLI",
	}

	// forgectl register
	var tenantSlug string
	registerCmd := &cobra.Command{
		Use:   "register TENANT_NAME",
		Short: "Register a tenant and print its access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodPost, "/api/v1/tenants", map[string]string{
				"name": args[0], "slug": tenantSlug,
			})
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	registerCmd.Flags().StringVar(&tenantSlug, "slug", "", "Tenant slug (derived from name when empty)")
	rootCmd.AddCommand(registerCmd)

	// forgectl workspace
	workspaceCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Workspace operations",
	}
	workspaceCmd.AddCommand(&cobra.Command{
		Use:   "create WORKSPACE_NAME",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodPost, "/api/v1/workspaces", map[string]string{"name": args[0]})
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	})
	workspaceCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodGet, "/api/v1/workspaces", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	})
	workspaceCmd.AddCommand(&cobra.Command{
		Use:   "delete WORKSPACE_ID",
		Short: "Delete a workspace and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.do(http.MethodDelete, "/api/v1/workspaces/"+args[0], nil)
			if err != nil {
				return err
			}
			fmt.Println("workspace deleted")
			return nil
		},
	})
	rootCmd.AddCommand(workspaceCmd)

	// forgectl recipes
	recipesCmd := &cobra.Command{
		Use:   "recipes",
		Short: "List the recipe catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodGet, "/api/v1/recipes", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	rootCmd.AddCommand(recipesCmd)

	// forgectl install
	var installWorkspace, installName string
	var installConfig []string
	installCmd := &cobra.Command{
		Use:   "install RECIPE",
		Short: "Install a recipe into a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := make(map[string]any, len(installConfig))
			for _, kv := range installConfig {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --set %q (expected key=value)", kv)
				}
				cfg[k] = v
			}
			data, err := c.do(http.MethodPost, "/api/v1/workspaces/"+installWorkspace+"/deployments", map[string]any{
				"recipe": args[0],
				"name":   installName,
				"config": cfg,
			})
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	installCmd.Flags().StringVarP(&installWorkspace, "workspace", "w", "", "Workspace ID (required)")
	installCmd.Flags().StringVar(&installName, "name", "", "Deployment name (defaults to recipe slug)")
	installCmd.Flags().StringArrayVar(&installConfig, "set", nil, "Config value key=value (repeatable)")
	_ = installCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(installCmd)

	// forgectl status
	statusCmd := &cobra.Command{
		Use:   "status DEPLOYMENT_ID",
		Short: "Show a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodGet, "/api/v1/deployments/"+args[0], nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	rootCmd.AddCommand(statusCmd)

	// forgectl list
	var listWorkspace string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a workspace's deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodGet, "/api/v1/workspaces/"+listWorkspace+"/deployments", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	listCmd.Flags().StringVarP(&listWorkspace, "workspace", "w", "", "Workspace ID (required)")
	_ = listCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(listCmd)

	// forgectl remove
	removeCmd := &cobra.Command{
		Use:   "remove DEPLOYMENT_ID",
		Short: "Remove a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodDelete, "/api/v1/deployments/"+args[0], nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	rootCmd.AddCommand(removeCmd)

	// forgectl restart
	restartCmd := &cobra.Command{
		Use:   "restart DEPLOYMENT_ID",
		Short: "Redeploy with the current config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodPost, "/api/v1/deployments/"+args[0]+"/restart", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	rootCmd.AddCommand(restartCmd)

	// forgectl export / import
	var exportWorkspace string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a workspace snapshot to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodGet, "/api/v1/workspaces/"+exportWorkspace+"/snapshot", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	exportCmd.Flags().StringVarP(&exportWorkspace, "workspace", "w", "", "Workspace ID (required)")
	_ = exportCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(exportCmd)

	var importWorkspace, importFile string
	var importOverwrite bool
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a snapshot into a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(importFile)
			if err != nil {
				return err
			}
			var doc map[string]any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("invalid snapshot file: %w", err)
			}
			path := "/api/v1/workspaces/" + importWorkspace + "/snapshot"
			if importOverwrite {
				path += "?overwrite=true"
			}
			data, err := c.do(http.MethodPost, path, doc)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	importCmd.Flags().StringVarP(&importWorkspace, "workspace", "w", "", "Workspace ID (required)")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Snapshot file (required)")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Upgrade existing deployments on name collision")
	_ = importCmd.MarkFlagRequired("workspace")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)

	// forgectl forwards
	forwardsCmd := &cobra.Command{
		Use:   "forwards",
		Short: "Show the live port-forward table",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.do(http.MethodGet, "/api/v1/forwards", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	rootCmd.AddCommand(forwardsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
