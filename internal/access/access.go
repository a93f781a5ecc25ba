package access

import (
	"errors"
	"fmt"

	"ChainVault/internal/ledger"
	"ChainVault/internal/logger"
)

// NotOwnerError is returned when a non-owner tries to change grants.
type NotOwnerError struct {
	FileHash string
	Caller   string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("%s is not the owner of file %s", e.Caller, e.FileHash)
}

// AccessDeniedError is returned when an identity may not retrieve a file.
type AccessDeniedError struct {
	FileHash string
	Identity string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("%s has no access to file %s", e.Identity, e.FileHash)
}

// UnknownFileError is returned for an unregistered file hash.
type UnknownFileError struct {
	FileHash string
}

func (e *UnknownFileError) Error() string {
	return fmt.Sprintf("file %s not found", e.FileHash)
}

// Store is the grant-capable metadata store.
type Store interface {
	File(hash string) (ledger.FileRecord, error)
	Files() ([]ledger.FileRecord, error)
	SetGrant(hash, grantee string, present bool) error
	HasGrant(hash, grantee string) (bool, error)
	Grantees(hash string) ([]string, error)
	GrantedTo(grantee string) ([]string, error)
}

// Control authorizes file access.
type Control struct {
	store Store
}

// New creates an access controller over store.
func New(store Store) *Control {
	return &Control{store: store}
}

// Grant lets grantee retrieve hash. Only the owner may grant; repeating is a no-op.
func (c *Control) Grant(hash, owner, grantee string) error {
	if err := c.requireOwner(hash, owner); err != nil {
		return err
	}

	if err := c.store.SetGrant(hash, grantee, true); err != nil {
		return fmt.Errorf("grant %s on %s:\n%w", grantee, hash, err)
	}

	logger.Info("access granted", "file", hash, "grantee", grantee)

	return nil
}

// Revoke removes grantee's grant on hash. Only the owner may revoke; repeating is a no-op.
func (c *Control) Revoke(hash, owner, grantee string) error {
	if err := c.requireOwner(hash, owner); err != nil {
		return err
	}

	if err := c.store.SetGrant(hash, grantee, false); err != nil {
		return fmt.Errorf("revoke %s on %s:\n%w", grantee, hash, err)
	}

	logger.Info("access revoked", "file", hash, "grantee", grantee)

	return nil
}

// HasAccess reports whether identity owns hash or holds a grant on it.
func (c *Control) HasAccess(hash, identity string) (bool, error) {
	rec, err := c.file(hash)
	if err != nil {
		return false, err
	}

	if rec.Owner == identity {
		return true, nil
	}

	return c.store.HasGrant(hash, identity)
}

// Authorize returns AccessDeniedError unless identity may retrieve hash.
func (c *Control) Authorize(hash, identity string) (ledger.FileRecord, error) {
	rec, err := c.file(hash)
	if err != nil {
		return rec, err
	}

	if rec.Owner == identity {
		return rec, nil
	}

	ok, err := c.store.HasGrant(hash, identity)
	if err != nil {
		return rec, err
	}

	if !ok {
		return rec, &AccessDeniedError{FileHash: hash, Identity: identity}
	}

	return rec, nil
}

// Grantees lists the identities granted on hash. Only the owner may list them.
func (c *Control) Grantees(hash, owner string) ([]string, error) {
	if err := c.requireOwner(hash, owner); err != nil {
		return nil, err
	}

	return c.store.Grantees(hash)
}

// Kind tells how an account reaches a file.
type Kind string

const (
	KindOwner   Kind = "owner"
	KindGranted Kind = "granted"
)

// Entry is one file visible to an account.
type Entry struct {
	File   ledger.FileRecord `json:"file"`
	Access Kind              `json:"accessType"`
}

// Accessible lists the files account owns followed by those it was granted.
func (c *Control) Accessible(account string) ([]Entry, error) {
	files, err := c.store.Files()
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, f := range files {
		if f.Owner == account {
			out = append(out, Entry{File: f, Access: KindOwner})
		}
	}

	granted, err := c.store.GrantedTo(account)
	if err != nil {
		return nil, err
	}

	for _, hash := range granted {
		f, err := c.store.File(hash)
		if err != nil {
			return nil, err
		}

		if f.Owner != account {
			out = append(out, Entry{File: f, Access: KindGranted})
		}
	}

	return out, nil
}

func (c *Control) requireOwner(hash, caller string) error {
	rec, err := c.file(hash)
	if err != nil {
		return err
	}

	if rec.Owner != caller {
		return &NotOwnerError{FileHash: hash, Caller: caller}
	}

	return nil
}

func (c *Control) file(hash string) (ledger.FileRecord, error) {
	rec, err := c.store.File(hash)
	if errors.Is(err, ledger.ErrNotFound) {
		return rec, &UnknownFileError{FileHash: hash}
	}

	return rec, err
}
