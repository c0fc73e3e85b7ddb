package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/utils"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Create and inspect proposals",
}

var documentCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a proposal at version 1",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentCreate,
}

var documentShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show a proposal's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentShow,
}

var documentVersionsCmd = &cobra.Command{
	Use:   "versions [doc-id]",
	Short: "List version history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentVersions,
}

var documentDiscardCmd = &cobra.Command{
	Use:   "discard [doc-id]",
	Short: "Discard the current draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDiscard,
}

var documentInviteCmd = &cobra.Command{
	Use:   "invite [doc-id] [user-id]",
	Short: "Grant a user a role on a proposal",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocumentInvite,
}

var documentCollaboratorsCmd = &cobra.Command{
	Use:   "collaborators [doc-id]",
	Short: "List who has access",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentCollaborators,
}

var (
	createText  string
	createFile  string
	inviteRole  string
	agencyField string
)

func init() {
	documentCreateCmd.Flags().StringVar(&createText, "text", "", "Initial body text")
	documentCreateCmd.Flags().StringVarP(&createFile, "file", "f", "", "Initial content as rich-text JSON")
	documentCreateCmd.Flags().StringVar(&agencyField, "agency", "", "Funding agency")
	documentInviteCmd.Flags().StringVarP(&inviteRole, "role", "r", string(models.RoleEditor), "Role to grant (owner, editor, reviewer, viewer)")

	documentCmd.AddCommand(documentCreateCmd)
	documentCmd.AddCommand(documentShowCmd)
	documentCmd.AddCommand(documentVersionsCmd)
	documentCmd.AddCommand(documentDiscardCmd)
	documentCmd.AddCommand(documentInviteCmd)
	documentCmd.AddCommand(documentCollaboratorsCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentCreate(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	content, err := loadContent(createFile, createText)
	if err != nil {
		return err
	}

	doc, err := api.CreateDocument(context.Background(), &models.CreateDocumentRequest{
		Content:  content,
		Metadata: models.ProposalMetadata{Title: args[0], Agency: agencyField},
	})
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	cmd.Printf("Created %s (version %d)\n", doc.ID, doc.MajorVersion)
	return nil
}

func runDocumentShow(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	doc, err := api.GetDocument(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n", doc.ID)
	cmd.Printf("  Title:   %s\n", doc.Metadata.Title)
	cmd.Printf("  Version: %s\n", versionLabel(doc.MajorVersion, doc.DraftVersion))
	cmd.Printf("  Words:   %d\n", doc.WordCount)
	cmd.Printf("  Updated: %s\n", doc.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if text := utils.ExtractText(doc.Content); text != "" {
		cmd.Println()
		cmd.Println(text)
	}
	return nil
}

func runDocumentVersions(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	versions, err := api.ListVersions(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		cmd.Println("No versions")
		return nil
	}

	for _, v := range versions {
		kind := "major"
		if v.IsDraft {
			kind = "draft"
		}
		cmd.Printf("  %-6s %-5s %s  %s\n", v.Label(), kind, v.UpdatedAt.Local().Format("2006-01-02 15:04"), v.CommitMessage)
	}
	return nil
}

func runDocumentDiscard(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	doc, err := api.DiscardDraft(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to discard draft: %w", err)
	}
	cmd.Printf("Draft discarded, back at version %d\n", doc.MajorVersion)
	return nil
}

func runDocumentInvite(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	c, err := api.Invite(context.Background(), args[0], &models.InviteRequest{
		UserID: args[1],
		Role:   models.Role(inviteRole),
	})
	if err != nil {
		return fmt.Errorf("failed to invite: %w", err)
	}
	cmd.Printf("Granted %s to %s\n", c.Role, c.UserID)
	return nil
}

func runDocumentCollaborators(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	list, err := api.ListCollaborators(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list collaborators: %w", err)
	}
	for _, c := range list {
		cmd.Printf("  %-36s %s\n", c.UserID, c.Role)
	}
	return nil
}

// loadContent reads rich-text JSON from path, or wraps text in a single
// paragraph when no file is given.
func loadContent(path, text string) (json.RawMessage, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", path)
		}
		return data, nil
	}
	return paragraphs(text), nil
}

func paragraphs(text string) json.RawMessage {
	nodes := []any{}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		nodes = append(nodes, map[string]any{
			"type":    "paragraph",
			"content": []any{map[string]any{"type": "text", "text": line}},
		})
	}
	content, _ := json.Marshal(map[string]any{"type": "doc", "content": nodes})
	return content
}

func versionLabel(major int, draft *float64) string {
	if draft != nil {
		return fmt.Sprintf("%g (draft)", *draft)
	}
	return fmt.Sprintf("%d", major)
}
