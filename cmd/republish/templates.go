package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaiven11/artical-generate/internal/types"
)

var (
	templateFile        string
	templateTypeFlag    string
	templateContentType string
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage prompt templates",
	}
	cmd.AddCommand(templatesListCmd())
	cmd.AddCommand(templatesExportCmd())
	cmd.AddCommand(templatesImportCmd())
	return cmd
}

func templatesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompt templates for a stage/content-type",
		RunE:  runTemplatesList,
	}
	cmd.Flags().StringVar(&templateTypeFlag, "type", "", "prompt type: translation, optimisation, creation, ai_reduction")
	cmd.Flags().StringVar(&templateContentType, "content-type", "", "content type: technical, tutorial, news, general")
	return cmd
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close(ctx)

	all, err := d.store.ExportTemplates(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		if templateTypeFlag != "" && string(t.Type) != templateTypeFlag {
			continue
		}
		if templateContentType != "" && string(t.ContentType) != templateContentType {
			continue
		}
		fmt.Printf("%-6d %-24s %-12s %-10s priority=%-3d active=%v default=%v\n",
			t.ID, t.Name, t.Type, t.ContentType, t.Priority, t.IsActive, t.IsDefault)
	}
	return nil
}

func templatesExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all prompt templates as JSON",
		RunE:  runTemplatesExport,
	}
	cmd.Flags().StringVarP(&templateFile, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func runTemplatesExport(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close(ctx)

	templates, err := d.store.ExportTemplates(ctx)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(templates, "", "  ")
	if err != nil {
		return err
	}
	if templateFile == "" {
		fmt.Println(string(payload))
		return nil
	}
	return os.WriteFile(templateFile, payload, 0o644)
}

func templatesImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import prompt templates from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE:  runTemplatesImport,
	}
	return cmd
}

func runTemplatesImport(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close(ctx)

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	var templates []*types.PromptTemplate
	if err := json.Unmarshal(raw, &templates); err != nil {
		return fmt.Errorf("decode templates: %w", err)
	}

	now := time.Now()
	for _, t := range templates {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
	}

	n, err := d.store.ImportTemplates(ctx, templates)
	if err != nil {
		return err
	}
	logger.Info("templates imported", "count", n)
	return nil
}
