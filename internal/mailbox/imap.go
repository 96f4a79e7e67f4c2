package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPMailbox connects to an IMAP/IMAPS server.
type IMAPMailbox struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	folder   string
	logger   *slog.Logger
}

// NewIMAP creates a new IMAP mailbox.
func NewIMAP(host string, port int, username, password string, useTLS bool, folder string, logger *slog.Logger) *IMAPMailbox {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPMailbox{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		folder:   folder,
		logger:   logger,
	}
}

func (m *IMAPMailbox) Connect(ctx context.Context) (Session, error) {
	addr := net.JoinHostPort(m.host, fmt.Sprintf("%d", m.port))

	var client *imapclient.Client
	var err error

	if m.useTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: m.host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login %s: %w", m.username, err)
	}

	if _, err := client.Select(m.folder, nil).Wait(); err != nil {
		client.Logout().Wait()
		client.Close()
		return nil, fmt.Errorf("imap select %s: %w", m.folder, err)
	}

	return &imapSession{client: client, logger: m.logger}, nil
}

type imapSession struct {
	client *imapclient.Client
	logger *slog.Logger
}

func (s *imapSession) SearchUnread(since time.Time) ([]string, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	if !since.IsZero() {
		criteria.Since = since
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	uids := searchData.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (s *imapSession) Fetch(id string) ([]byte, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	buffers, err := s.client.Fetch(imap.UIDSetNum(uid), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch uid %s: %w", id, err)
	}
	if len(buffers) == 0 {
		return nil, fmt.Errorf("imap fetch uid %s: no data", id)
	}

	content := buffers[0].FindBodySection(bodySection)
	if len(content) == 0 {
		return nil, fmt.Errorf("imap fetch uid %s: empty body", id)
	}
	return content, nil
}

func (s *imapSession) MarkRead(id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	store := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	if err := s.client.Store(imap.UIDSetNum(uid), store, nil).Close(); err != nil {
		return fmt.Errorf("imap mark read uid %s: %w", id, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", "error", err)
	}
	return s.client.Close()
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad message id %q: %w", id, err)
	}
	return imap.UID(n), nil
}
