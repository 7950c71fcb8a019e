package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/command"
	"pkt.systems/jrepl/internal/eventbus"
	"pkt.systems/jrepl/internal/format"
	"pkt.systems/jrepl/internal/logx"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// SessionOpener creates and releases the orchestrator behind an SSH session.
// OpenSession returns a started orchestrator whose events reach the bus.
type SessionOpener interface {
	OpenSession(ctx context.Context, id schema.SessionID, beep func()) (*core.Orchestrator, error)
	CloseSession(ctx context.Context, o *core.Orchestrator) error
}

// Server exposes a REPL per SSH session.
type Server struct {
	Config
	Listener       net.Listener
	Sessions       SessionOpener
	EventBus       *eventbus.Bus
	AuthorizedKeys *AuthorizedKeys
	Commands       command.HandlerConfig
	logger         pslog.Logger
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Sessions == nil {
		return errors.New("session opener is required for SSH")
	}
	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}
	if s.AuthorizedKeys == nil {
		keys, err := LoadAuthorizedKeys(s.AuthorizedKeysPath)
		if err != nil {
			return err
		}
		s.AuthorizedKeys = keys
	}
	if s.Commands.HistoryFile == "" {
		s.Commands.HistoryFile = s.HistoryFile
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		IdleTimeout:      s.IdleTimeout,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)
	s.logger.Info("ssh listening", "addr", s.Addr, "authorized_keys", s.AuthorizedKeys.Len(), "host_key", ssh.FingerprintSHA256(signer.PublicKey()))

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	if ctx.User() == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user")
		return false
	}
	comment, ok := s.AuthorizedKeys.Allows(key)
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	log.Info("ssh pubkey accepted", "key", comment)
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	user := sess.User()
	log = log.With("user", user, "remote", sess.RemoteAddr().String())
	if sshSession := sess.Context().SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	// Sessions are keyed by user so history persists across logins.
	sessionID := schema.SessionID(user)
	ctx := logx.ContextWithSessionLogger(sess.Context(), log, sessionID)
	events, unsubscribe := s.EventBus.Subscribe(sessionID)
	defer unsubscribe()

	renderer := format.ForTheme(s.Theme, format.NewTermRenderer(sess, pty.Term, s.Theme))
	ui := newTerminalSession(sess, sess, nil, nil, renderer, events)
	orch, err := s.Sessions.OpenSession(ctx, sessionID, ui.screen.Bell)
	if err != nil {
		log.Warn("ssh session open failed", "err", err)
		_, _ = io.WriteString(sess, "error: "+err.Error()+"\n")
		_ = sess.Exit(1)
		return
	}
	defer func() {
		if err := s.Sessions.CloseSession(context.WithoutCancel(ctx), orch); err != nil {
			log.Warn("ssh session close failed", "err", err)
		}
	}()
	ui.orch = orch
	ui.handler = command.NewHandler(orch, s.Commands)

	log.Info("ssh session opened", "term", pty.Term)
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	_ = ui.Run(ctx, winCh)
	_ = sess.Exit(0)
	log.Info("ssh session closed", "term", pty.Term)
}
