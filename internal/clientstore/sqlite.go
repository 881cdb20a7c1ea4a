package clientstore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/giantswarm/phnx-homeserver/internal/fqdn"
	"github.com/giantswarm/phnx-homeserver/internal/groupstate"
	"github.com/giantswarm/phnx-homeserver/internal/ids"
)

// schema creates every table this package needs, idempotently, so opening
// the same client database file twice across a restart is a no-op on the
// second run.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	status INTEGER NOT NULL,
	attributed_to_uuid TEXT NOT NULL DEFAULT '',
	attributed_to_domain TEXT NOT NULL DEFAULT '',
	last_message_at TIMESTAMP,
	PRIMARY KEY (group_uuid, owning_domain)
);
CREATE TABLE IF NOT EXISTS messages (
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	epoch INTEGER NOT NULL,
	sender_leaf INTEGER NOT NULL,
	sent_at TIMESTAMP NOT NULL,
	plaintext BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS contacts (
	user_uuid TEXT NOT NULL,
	user_domain TEXT NOT NULL,
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	friendship_token BLOB NOT NULL,
	connection_key BLOB NOT NULL,
	user_profile_base_secret BLOB NOT NULL,
	PRIMARY KEY (user_uuid, user_domain)
);
CREATE TABLE IF NOT EXISTS partial_contacts (
	user_uuid TEXT NOT NULL,
	user_domain TEXT NOT NULL,
	handle TEXT NOT NULL,
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_uuid, user_domain)
);
CREATE TABLE IF NOT EXISTS group_memberships (
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	leaf_index INTEGER NOT NULL,
	role INTEGER NOT NULL,
	PRIMARY KEY (group_uuid, owning_domain)
);
CREATE TABLE IF NOT EXISTS credential_cache (
	fingerprint TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	body BLOB NOT NULL,
	cached_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS queue_ratchets (
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	ratchet_secret BLOB NOT NULL,
	generation INTEGER NOT NULL,
	PRIMARY KEY (group_uuid, owning_domain)
);
CREATE TABLE IF NOT EXISTS leaf_keys (
	group_uuid TEXT NOT NULL,
	owning_domain TEXT NOT NULL,
	leaf_index INTEGER NOT NULL,
	signing_key BLOB NOT NULL,
	encryption_key BLOB NOT NULL,
	PRIMARY KEY (group_uuid, owning_domain)
);
CREATE TABLE IF NOT EXISTS indexed_keys (
	key_index TEXT PRIMARY KEY,
	key_bytes BLOB NOT NULL,
	used INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS user_profile_keys (
	user_uuid TEXT NOT NULL,
	user_domain TEXT NOT NULL,
	key_index INTEGER NOT NULL,
	key_bytes BLOB NOT NULL,
	PRIMARY KEY (user_uuid, user_domain, key_index)
);
`

// SQLiteStore implements Storer against an embedded SQLite database, one
// file per logged-in user, via mattn/go-sqlite3 (the driver the broader
// retrieval pack most consistently reaches for when it needs an embedded
// relational store).
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("clientstore: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("clientstore: applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) PutConversation(ctx context.Context, conv Conversation) error {
	sqlStr := `
		INSERT INTO conversations (group_uuid, owning_domain, status, attributed_to_uuid, attributed_to_domain, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_uuid, owning_domain) DO UPDATE SET
			status = excluded.status,
			attributed_to_uuid = excluded.attributed_to_uuid,
			attributed_to_domain = excluded.attributed_to_domain,
			last_message_at = excluded.last_message_at`
	_, err := s.db.ExecContext(ctx, sqlStr,
		conv.Id.UUID.String(), conv.Id.OwningDomain.String(), int(conv.Status),
		conv.AttributedTo.UUID.String(), conv.AttributedTo.Domain.String(), conv.LastMessageAt)
	if err != nil {
		return fmt.Errorf("clientstore: storing conversation %s: %w", conv.Id, err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id ids.QualifiedGroupId) (Conversation, error) {
	sqlStr := `
		SELECT status, attributed_to_uuid, attributed_to_domain, last_message_at
		FROM conversations WHERE group_uuid = ? AND owning_domain = ?`
	var status int
	var attrUUID, attrDomain string
	var lastMessageAt time.Time
	err := s.db.QueryRowContext(ctx, sqlStr, id.UUID.String(), id.OwningDomain.String()).
		Scan(&status, &attrUUID, &attrDomain, &lastMessageAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, &ErrNotFound{Kind: "conversation", Key: id.String()}
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("clientstore: loading conversation %s: %w", id, err)
	}
	attributedTo, err := parseUserIdOrZero(attrUUID, attrDomain)
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{
		Id:            id,
		Status:        ConversationStatus(status),
		AttributedTo:  attributedTo,
		LastMessageAt: lastMessageAt,
	}, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	sqlStr := `SELECT group_uuid, owning_domain, status, attributed_to_uuid, attributed_to_domain, last_message_at FROM conversations`
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("clientstore: listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var groupUUID, owningDomain, attrUUID, attrDomain string
		var status int
		var lastMessageAt time.Time
		if err := rows.Scan(&groupUUID, &owningDomain, &status, &attrUUID, &attrDomain, &lastMessageAt); err != nil {
			return nil, fmt.Errorf("clientstore: scanning conversation row: %w", err)
		}
		groupID, err := parseGroupID(groupUUID, owningDomain)
		if err != nil {
			return nil, err
		}
		attributedTo, err := parseUserIdOrZero(attrUUID, attrDomain)
		if err != nil {
			return nil, err
		}
		out = append(out, Conversation{
			Id:            groupID,
			Status:        ConversationStatus(status),
			AttributedTo:  attributedTo,
			LastMessageAt: lastMessageAt,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetConversationStatus(ctx context.Context, id ids.QualifiedGroupId, status ConversationStatus) error {
	sqlStr := `UPDATE conversations SET status = ? WHERE group_uuid = ? AND owning_domain = ?`
	if _, err := s.db.ExecContext(ctx, sqlStr, int(status), id.UUID.String(), id.OwningDomain.String()); err != nil {
		return fmt.Errorf("clientstore: updating conversation status %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) PutMessage(ctx context.Context, msg Message) error {
	sqlStr := `
		INSERT INTO messages (group_uuid, owning_domain, epoch, sender_leaf, sent_at, plaintext)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, sqlStr,
		msg.ConversationId.UUID.String(), msg.ConversationId.OwningDomain.String(),
		msg.Epoch, msg.SenderLeaf, msg.SentAt, msg.Plaintext)
	if err != nil {
		return fmt.Errorf("clientstore: storing message in %s: %w", msg.ConversationId, err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID ids.QualifiedGroupId) ([]Message, error) {
	sqlStr := `
		SELECT epoch, sender_leaf, sent_at, plaintext FROM messages
		WHERE group_uuid = ? AND owning_domain = ?
		ORDER BY sent_at ASC`
	rows, err := s.db.QueryContext(ctx, sqlStr, conversationID.UUID.String(), conversationID.OwningDomain.String())
	if err != nil {
		return nil, fmt.Errorf("clientstore: listing messages in %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		msg.ConversationId = conversationID
		if err := rows.Scan(&msg.Epoch, &msg.SenderLeaf, &msg.SentAt, &msg.Plaintext); err != nil {
			return nil, fmt.Errorf("clientstore: scanning message row: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutContact(ctx context.Context, c Contact) error {
	sqlStr := `
		INSERT INTO contacts (user_uuid, user_domain, group_uuid, owning_domain, friendship_token, connection_key, user_profile_base_secret)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_uuid, user_domain) DO UPDATE SET
			group_uuid = excluded.group_uuid,
			owning_domain = excluded.owning_domain,
			friendship_token = excluded.friendship_token,
			connection_key = excluded.connection_key,
			user_profile_base_secret = excluded.user_profile_base_secret`
	_, err := s.db.ExecContext(ctx, sqlStr,
		c.UserId.UUID.String(), c.UserId.Domain.String(),
		c.ConversationId.UUID.String(), c.ConversationId.OwningDomain.String(),
		c.FriendshipToken, c.ConnectionKey, c.UserProfileBaseSecret)
	if err != nil {
		return fmt.Errorf("clientstore: storing contact %s: %w", c.UserId, err)
	}
	return nil
}

func (s *SQLiteStore) GetContact(ctx context.Context, user ids.UserId) (Contact, error) {
	sqlStr := `
		SELECT group_uuid, owning_domain, friendship_token, connection_key, user_profile_base_secret
		FROM contacts WHERE user_uuid = ? AND user_domain = ?`
	var groupUUID, owningDomain string
	var c Contact
	c.UserId = user
	err := s.db.QueryRowContext(ctx, sqlStr, user.UUID.String(), user.Domain.String()).
		Scan(&groupUUID, &owningDomain, &c.FriendshipToken, &c.ConnectionKey, &c.UserProfileBaseSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, &ErrNotFound{Kind: "contact", Key: user.String()}
	}
	if err != nil {
		return Contact{}, fmt.Errorf("clientstore: loading contact %s: %w", user, err)
	}
	groupID, err := parseGroupID(groupUUID, owningDomain)
	if err != nil {
		return Contact{}, err
	}
	c.ConversationId = groupID
	return c, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context) ([]Contact, error) {
	sqlStr := `SELECT user_uuid, user_domain, group_uuid, owning_domain, friendship_token, connection_key, user_profile_base_secret FROM contacts`
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("clientstore: listing contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var userUUID, userDomain, groupUUID, owningDomain string
		var c Contact
		if err := rows.Scan(&userUUID, &userDomain, &groupUUID, &owningDomain, &c.FriendshipToken, &c.ConnectionKey, &c.UserProfileBaseSecret); err != nil {
			return nil, fmt.Errorf("clientstore: scanning contact row: %w", err)
		}
		user, err := parseUserIdOrZero(userUUID, userDomain)
		if err != nil {
			return nil, err
		}
		groupID, err := parseGroupID(groupUUID, owningDomain)
		if err != nil {
			return nil, err
		}
		c.UserId = user
		c.ConversationId = groupID
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutPartialContact(ctx context.Context, p PartialContact) error {
	sqlStr := `
		INSERT INTO partial_contacts (user_uuid, user_domain, handle, group_uuid, owning_domain, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_uuid, user_domain) DO UPDATE SET
			handle = excluded.handle,
			group_uuid = excluded.group_uuid,
			owning_domain = excluded.owning_domain,
			created_at = excluded.created_at`
	_, err := s.db.ExecContext(ctx, sqlStr,
		p.UserId.UUID.String(), p.UserId.Domain.String(), hex.EncodeToString(p.Handle[:]),
		p.ConversationId.UUID.String(), p.ConversationId.OwningDomain.String(), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("clientstore: storing partial contact %s: %w", p.UserId, err)
	}
	return nil
}

func (s *SQLiteStore) GetPartialContactByHandle(ctx context.Context, handle ids.UserHandleHash) (PartialContact, error) {
	sqlStr := `
		SELECT user_uuid, user_domain, group_uuid, owning_domain, created_at
		FROM partial_contacts WHERE handle = ?`
	var userUUID, userDomain, groupUUID, owningDomain string
	var p PartialContact
	p.Handle = handle
	err := s.db.QueryRowContext(ctx, sqlStr, hex.EncodeToString(handle[:])).
		Scan(&userUUID, &userDomain, &groupUUID, &owningDomain, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PartialContact{}, &ErrNotFound{Kind: "partial_contact", Key: handle.String()}
	}
	if err != nil {
		return PartialContact{}, fmt.Errorf("clientstore: loading partial contact by handle: %w", err)
	}
	user, err := parseUserIdOrZero(userUUID, userDomain)
	if err != nil {
		return PartialContact{}, err
	}
	groupID, err := parseGroupID(groupUUID, owningDomain)
	if err != nil {
		return PartialContact{}, err
	}
	p.UserId = user
	p.ConversationId = groupID
	return p, nil
}

func (s *SQLiteStore) DeletePartialContact(ctx context.Context, user ids.UserId) error {
	sqlStr := `DELETE FROM partial_contacts WHERE user_uuid = ? AND user_domain = ?`
	if _, err := s.db.ExecContext(ctx, sqlStr, user.UUID.String(), user.Domain.String()); err != nil {
		return fmt.Errorf("clientstore: deleting partial contact %s: %w", user, err)
	}
	return nil
}

func (s *SQLiteStore) PutGroupMembership(ctx context.Context, m GroupMembership) error {
	sqlStr := `
		INSERT INTO group_memberships (group_uuid, owning_domain, leaf_index, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (group_uuid, owning_domain) DO UPDATE SET leaf_index = excluded.leaf_index, role = excluded.role`
	_, err := s.db.ExecContext(ctx, sqlStr, m.ConversationId.UUID.String(), m.ConversationId.OwningDomain.String(), m.LeafIndex, int(m.Role))
	if err != nil {
		return fmt.Errorf("clientstore: storing group membership for %s: %w", m.ConversationId, err)
	}
	return nil
}

func (s *SQLiteStore) GetGroupMembership(ctx context.Context, conversationID ids.QualifiedGroupId) (GroupMembership, error) {
	sqlStr := `SELECT leaf_index, role FROM group_memberships WHERE group_uuid = ? AND owning_domain = ?`
	var m GroupMembership
	m.ConversationId = conversationID
	var role int
	err := s.db.QueryRowContext(ctx, sqlStr, conversationID.UUID.String(), conversationID.OwningDomain.String()).Scan(&m.LeafIndex, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return GroupMembership{}, &ErrNotFound{Kind: "group_membership", Key: conversationID.String()}
	}
	if err != nil {
		return GroupMembership{}, fmt.Errorf("clientstore: loading group membership for %s: %w", conversationID, err)
	}
	m.Role = groupstate.Role(role)
	return m, nil
}

func (s *SQLiteStore) PutCredentialCacheEntry(ctx context.Context, e CredentialCacheEntry) error {
	sqlStr := `
		INSERT INTO credential_cache (fingerprint, domain, body, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET domain = excluded.domain, body = excluded.body, cached_at = excluded.cached_at`
	_, err := s.db.ExecContext(ctx, sqlStr, e.Fingerprint.String(), e.Domain, e.Body, e.CachedAt)
	if err != nil {
		return fmt.Errorf("clientstore: caching credential %s: %w", e.Fingerprint, err)
	}
	return nil
}

func (s *SQLiteStore) GetCredentialCacheEntry(ctx context.Context, fp ids.CredentialFingerprint) (CredentialCacheEntry, error) {
	sqlStr := `SELECT domain, body, cached_at FROM credential_cache WHERE fingerprint = ?`
	var e CredentialCacheEntry
	e.Fingerprint = fp
	err := s.db.QueryRowContext(ctx, sqlStr, fp.String()).Scan(&e.Domain, &e.Body, &e.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CredentialCacheEntry{}, &ErrNotFound{Kind: "credential_cache", Key: fp.String()}
	}
	if err != nil {
		return CredentialCacheEntry{}, fmt.Errorf("clientstore: loading cached credential %s: %w", fp, err)
	}
	return e, nil
}

func (s *SQLiteStore) PutQueueRatchet(ctx context.Context, r QueueRatchet) error {
	sqlStr := `
		INSERT INTO queue_ratchets (group_uuid, owning_domain, ratchet_secret, generation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (group_uuid, owning_domain) DO UPDATE SET ratchet_secret = excluded.ratchet_secret, generation = excluded.generation`
	_, err := s.db.ExecContext(ctx, sqlStr, r.ConversationId.UUID.String(), r.ConversationId.OwningDomain.String(), r.RatchetSecret, r.Generation)
	if err != nil {
		return fmt.Errorf("clientstore: storing queue ratchet for %s: %w", r.ConversationId, err)
	}
	return nil
}

func (s *SQLiteStore) GetQueueRatchet(ctx context.Context, conversationID ids.QualifiedGroupId) (QueueRatchet, error) {
	sqlStr := `SELECT ratchet_secret, generation FROM queue_ratchets WHERE group_uuid = ? AND owning_domain = ?`
	var r QueueRatchet
	r.ConversationId = conversationID
	err := s.db.QueryRowContext(ctx, sqlStr, conversationID.UUID.String(), conversationID.OwningDomain.String()).Scan(&r.RatchetSecret, &r.Generation)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueRatchet{}, &ErrNotFound{Kind: "queue_ratchet", Key: conversationID.String()}
	}
	if err != nil {
		return QueueRatchet{}, fmt.Errorf("clientstore: loading queue ratchet for %s: %w", conversationID, err)
	}
	return r, nil
}

func (s *SQLiteStore) PutLeafKey(ctx context.Context, k LeafKeyRecord) error {
	sqlStr := `
		INSERT INTO leaf_keys (group_uuid, owning_domain, leaf_index, signing_key, encryption_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (group_uuid, owning_domain) DO UPDATE SET
			leaf_index = excluded.leaf_index, signing_key = excluded.signing_key, encryption_key = excluded.encryption_key`
	_, err := s.db.ExecContext(ctx, sqlStr, k.ConversationId.UUID.String(), k.ConversationId.OwningDomain.String(), k.LeafIndex, k.SigningKey, k.EncryptionKey)
	if err != nil {
		return fmt.Errorf("clientstore: storing leaf key for %s: %w", k.ConversationId, err)
	}
	return nil
}

func (s *SQLiteStore) GetLeafKey(ctx context.Context, conversationID ids.QualifiedGroupId) (LeafKeyRecord, error) {
	sqlStr := `SELECT leaf_index, signing_key, encryption_key FROM leaf_keys WHERE group_uuid = ? AND owning_domain = ?`
	var k LeafKeyRecord
	k.ConversationId = conversationID
	err := s.db.QueryRowContext(ctx, sqlStr, conversationID.UUID.String(), conversationID.OwningDomain.String()).Scan(&k.LeafIndex, &k.SigningKey, &k.EncryptionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return LeafKeyRecord{}, &ErrNotFound{Kind: "leaf_key", Key: conversationID.String()}
	}
	if err != nil {
		return LeafKeyRecord{}, fmt.Errorf("clientstore: loading leaf key for %s: %w", conversationID, err)
	}
	return k, nil
}

func (s *SQLiteStore) PutIndexedKey(ctx context.Context, k IndexedKeyRecord) error {
	sqlStr := `
		INSERT INTO indexed_keys (key_index, key_bytes, used)
		VALUES (?, ?, ?)
		ON CONFLICT (key_index) DO UPDATE SET key_bytes = excluded.key_bytes, used = excluded.used`
	used := 0
	if k.Used {
		used = 1
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, hex.EncodeToString(k.Index), k.Key, used); err != nil {
		return fmt.Errorf("clientstore: storing indexed key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIndexedKey(ctx context.Context, index []byte) (IndexedKeyRecord, error) {
	sqlStr := `SELECT key_bytes, used FROM indexed_keys WHERE key_index = ?`
	var k IndexedKeyRecord
	k.Index = index
	var used int
	err := s.db.QueryRowContext(ctx, sqlStr, hex.EncodeToString(index)).Scan(&k.Key, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexedKeyRecord{}, &ErrNotFound{Kind: "indexed_key", Key: hex.EncodeToString(index)}
	}
	if err != nil {
		return IndexedKeyRecord{}, fmt.Errorf("clientstore: loading indexed key: %w", err)
	}
	k.Used = used != 0
	return k, nil
}

func (s *SQLiteStore) MarkIndexedKeyUsed(ctx context.Context, index []byte) error {
	sqlStr := `UPDATE indexed_keys SET used = 1 WHERE key_index = ?`
	if _, err := s.db.ExecContext(ctx, sqlStr, hex.EncodeToString(index)); err != nil {
		return fmt.Errorf("clientstore: marking indexed key used: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PutUserProfileKey(ctx context.Context, k UserProfileKeyRecord) error {
	sqlStr := `
		INSERT INTO user_profile_keys (user_uuid, user_domain, key_index, key_bytes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_uuid, user_domain, key_index) DO UPDATE SET key_bytes = excluded.key_bytes`
	_, err := s.db.ExecContext(ctx, sqlStr, k.UserId.UUID.String(), k.UserId.Domain.String(), k.KeyIndex, k.Key)
	if err != nil {
		return fmt.Errorf("clientstore: storing user profile key for %s: %w", k.UserId, err)
	}
	return nil
}

func (s *SQLiteStore) GetUserProfileKey(ctx context.Context, user ids.UserId, keyIndex uint32) (UserProfileKeyRecord, error) {
	sqlStr := `SELECT key_bytes FROM user_profile_keys WHERE user_uuid = ? AND user_domain = ? AND key_index = ?`
	k := UserProfileKeyRecord{UserId: user, KeyIndex: keyIndex}
	err := s.db.QueryRowContext(ctx, sqlStr, user.UUID.String(), user.Domain.String(), keyIndex).Scan(&k.Key)
	if errors.Is(err, sql.ErrNoRows) {
		return UserProfileKeyRecord{}, &ErrNotFound{Kind: "user_profile_key", Key: user.String()}
	}
	if err != nil {
		return UserProfileKeyRecord{}, fmt.Errorf("clientstore: loading user profile key for %s: %w", user, err)
	}
	return k, nil
}

func parseGroupID(rawUUID, rawDomain string) (ids.QualifiedGroupId, error) {
	domain, err := fqdn.Parse(rawDomain)
	if err != nil {
		return ids.QualifiedGroupId{}, fmt.Errorf("clientstore: parsing group domain %q: %w", rawDomain, err)
	}
	u, err := parseUUID(rawUUID)
	if err != nil {
		return ids.QualifiedGroupId{}, fmt.Errorf("clientstore: parsing group uuid %q: %w", rawUUID, err)
	}
	return ids.QualifiedGroupId{UUID: u, OwningDomain: domain}, nil
}

// parseUserIdOrZero reassembles an ids.UserId from its stored columns. An
// empty domain string (how a zero UserId, such as a conversation's unset
// attributed_to, is stored) decodes to the zero UserId rather than erroring.
func parseUserIdOrZero(rawUUID, rawDomain string) (ids.UserId, error) {
	if rawDomain == "" {
		return ids.UserId{}, nil
	}
	domain, err := fqdn.Parse(rawDomain)
	if err != nil {
		return ids.UserId{}, fmt.Errorf("clientstore: parsing user domain %q: %w", rawDomain, err)
	}
	u, err := parseUUID(rawUUID)
	if err != nil {
		return ids.UserId{}, fmt.Errorf("clientstore: parsing user uuid %q: %w", rawUUID, err)
	}
	return ids.UserId{UUID: u, Domain: domain}, nil
}

func parseUUID(s string) (uuid.UUID, error) { return uuid.Parse(s) }
