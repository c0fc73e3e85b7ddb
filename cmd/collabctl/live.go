package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"collabsync/internal/capabilities"
	"collabsync/internal/client"
	"collabsync/internal/client/cache"
	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"
	"collabsync/internal/utils"
)

// liveSession is an open document with its transport and cache running.
type liveSession struct {
	*client.Session
	store  cache.Store
	cancel context.CancelFunc
	done   chan struct{}
}

// openLive connects to the room for documentID. When the server cannot be
// reached within the request timeout the session stays usable offline and
// joins once the transport connects.
func openLive(ctx context.Context, cmd *cobra.Command, documentID string) (*liveSession, error) {
	if cfg.UserID == "" {
		return nil, errors.New("user id not configured (collabctl config set user-id ...)")
	}

	api, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	wsURL, err := client.WebsocketURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	store, err := cache.NewSQLiteStore(filepath.Clean(cfg.CacheDir))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	registry, err := capabilities.NewRegistry()
	if err != nil {
		store.Close()
		return nil, err
	}

	transport := client.NewTransport(client.TransportConfig{
		URL:            wsURL,
		Token:          cfg.Token,
		RequestTimeout: cfg.RequestTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
	}, logger)

	session := client.NewSession(client.SessionConfig{
		DocumentID:       documentID,
		FormID:           "proposal",
		User:             models.UserRef{ID: cfg.UserID, Name: cfg.UserName},
		BatchInterval:    cfg.BatchInterval,
		AutosaveInterval: cfg.AutosaveInterval,
		Notify:           func(event string) { cmd.Printf("* %s\n", eventLabel(event)) },
	}, transport, api, client.NewPersistence(store, cfg.AutosaveInterval, logger), registry, logger)

	// Open before dialing so the first join happens from the connect hook
	if err := session.Open(ctx); err != nil {
		store.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		go session.Run(runCtx)
		_ = transport.Run(runCtx)
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer waitCancel()
	if err := session.WaitJoined(waitCtx); err != nil {
		cmd.PrintErrln("Server unreachable, working offline")
	}

	return &liveSession{Session: session, store: store, cancel: cancel, done: done}, nil
}

// close flushes and saves before tearing down the transport.
func (l *liveSession) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	err := l.Close(ctx)
	l.cancel()
	<-l.done
	return errors.Join(err, l.store.Close())
}

var watchCmd = &cobra.Command{
	Use:   "watch [doc-id]",
	Short: "Join a proposal's room and print live activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var editCmd = &cobra.Command{
	Use:   "edit [doc-id]",
	Short: "Replace the body and save it as the draft",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var promoteCmd = &cobra.Command{
	Use:   "promote [doc-id]",
	Short: "Promote the current draft to the next major version",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromote,
}

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Read and write comment threads",
}

var commentListCmd = &cobra.Command{
	Use:   "list [doc-id]",
	Short: "List comment threads",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommentList,
}

var commentAddCmd = &cobra.Command{
	Use:   "add [doc-id] [text]",
	Short: "Start a comment thread",
	Args:  cobra.ExactArgs(2),
	RunE:  runCommentAdd,
}

var commentReplyCmd = &cobra.Command{
	Use:   "reply [doc-id] [comment-id] [text]",
	Short: "Reply to a comment",
	Args:  cobra.ExactArgs(3),
	RunE:  runCommentReply,
}

var commentResolveCmd = &cobra.Command{
	Use:   "resolve [doc-id] [comment-id]",
	Short: "Mark a comment resolved",
	Args:  cobra.ExactArgs(2),
	RunE:  runCommentResolve,
}

var (
	editText      string
	editFile      string
	commitMessage string
)

func init() {
	editCmd.Flags().StringVar(&editText, "text", "", "New body text")
	editCmd.Flags().StringVarP(&editFile, "file", "f", "", "New content as rich-text JSON")
	promoteCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message for the new version")

	commentCmd.AddCommand(commentListCmd)
	commentCmd.AddCommand(commentAddCmd)
	commentCmd.AddCommand(commentReplyCmd)
	commentCmd.AddCommand(commentResolveCmd)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(commentCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	live, err := openLive(ctx, cmd, args[0])
	if err != nil {
		return err
	}

	printState(cmd, live.Session)
	cmd.Println("Watching, Ctrl-C to leave")

	<-ctx.Done()
	return live.close()
}

func runEdit(cmd *cobra.Command, args []string) error {
	if editFile == "" && editText == "" {
		return errors.New("one of --text or --file is required")
	}
	content, err := loadContent(editFile, editText)
	if err != nil {
		return err
	}

	ctx := context.Background()
	live, err := openLive(ctx, cmd, args[0])
	if err != nil {
		return err
	}

	words, chars := utils.CountContent(content)
	live.Edit(content, words, chars)

	snap, saveErr := live.Save(ctx)
	if saveErr == nil {
		cmd.Printf("Saved as %s\n", versionLabel(snap.MajorVersion, snap.DraftVersion))
	}
	// close retries over REST and always caches the edit locally
	return live.close()
}

func runPromote(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	live, err := openLive(ctx, cmd, args[0])
	if err != nil {
		return err
	}

	snap, err := live.Promote(ctx, commitMessage)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to promote: %w", err), live.close())
	}
	cmd.Printf("Created version %d\n", snap.MajorVersion)
	return live.close()
}

func runCommentList(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}
	comments, err := api.ListComments(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list comments: %w", err)
	}
	if len(comments) == 0 {
		cmd.Println("No comments")
		return nil
	}
	for _, c := range comments {
		printComment(cmd, c)
	}
	return nil
}

func runCommentAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	live, err := openLive(ctx, cmd, args[0])
	if err != nil {
		return err
	}

	c, err := live.Comments().AddComment(ctx, args[1])
	if err != nil {
		return errors.Join(fmt.Errorf("comment kept locally as %s: %w", c.ID, err), live.close())
	}
	cmd.Printf("Added comment %s\n", c.ID)
	return live.close()
}

func runCommentReply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	live, err := openLive(ctx, cmd, args[0])
	if err != nil {
		return err
	}

	r, err := live.Comments().Reply(ctx, args[1], args[2])
	if err != nil {
		return errors.Join(fmt.Errorf("failed to reply: %w", err), live.close())
	}
	cmd.Printf("Added reply %s\n", r.ID)
	return live.close()
}

func runCommentResolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	live, err := openLive(ctx, cmd, args[0])
	if err != nil {
		return err
	}

	if err := live.Comments().Resolve(ctx, args[1]); err != nil {
		return errors.Join(fmt.Errorf("failed to resolve: %w", err), live.close())
	}
	cmd.Printf("Resolved %s\n", args[1])
	return live.close()
}

func printState(cmd *cobra.Command, s *client.Session) {
	snap := s.Snapshot()
	cmd.Printf("Document %s at %s", snap.DocumentID, versionLabel(snap.MajorVersion, snap.DraftVersion))
	if role := s.Role(); role != "" {
		cmd.Printf(" as %s", role)
	}
	cmd.Println()
	for _, p := range s.Participants() {
		cmd.Printf("  %s (%s) since %s\n", p.Name, p.Role, p.JoinedAt.Local().Format(time.Kitchen))
	}
	if s.HasUnsavedChanges() {
		cmd.Println("  local changes not yet saved to the server")
	}
	cmd.Printf("  %d comment threads\n", len(s.Comments().Comments()))
}

func printComment(cmd *cobra.Command, c models.Comment) {
	status := ""
	if c.Resolved {
		status = " [resolved]"
	}
	cmd.Printf("%s  %s%s\n    %s\n", c.ID, c.AuthorName, status, c.Content)
	for _, r := range c.Replies {
		cmd.Printf("      > %s: %s\n", r.AuthorName, r.Content)
	}
}

func eventLabel(event string) string {
	if label, ok := eventLabels[event]; ok {
		return label
	}
	return event
}

// eventLabels names the broadcast events shown while watching.
var eventLabels = map[string]string{
	protocol.EventContentUpdated:    "content updated",
	protocol.EventParticipantJoined: "participant joined",
	protocol.EventParticipantLeft:   "participant left",
	protocol.EventNewComment:        "new comment",
	protocol.EventCommentReplyAdded: "reply added",
	protocol.EventCommentResolved:   "comment resolved",
	protocol.EventVersionCreated:    "version created",
	protocol.EventDraftDiscarded:    "draft discarded",
}
