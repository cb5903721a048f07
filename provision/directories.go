package provision

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	goerrors "github.com/goliatone/go-errors"

	accounts "github.com/goliatone/go-accounts"
)

// DefaultSubdirectories are created under every account root
var DefaultSubdirectories = []string{
	"characters",
	"chats",
	"groups",
	"group chats",
	"backgrounds",
	"thumbnails",
	"user",
	"user/images",
	"worlds",
	"themes",
	"settings",
}

// Directories gives each new account its own data tree and copies the
// seed content into it. Existing files are never overwritten, so running
// it twice for the same handle is safe.
type Directories struct {
	Root           string
	Subdirectories []string
	Seed           fs.FS
	Logger         accounts.Logger
}

var _ accounts.ProvisionHook = (*Directories)(nil)

// NewDirectories provisions under root, seeding from seedDir when set
func NewDirectories(root, seedDir string, logger accounts.Logger) *Directories {
	d := &Directories{
		Root:           root,
		Subdirectories: DefaultSubdirectories,
		Logger:         logger,
	}
	if seedDir != "" {
		d.Seed = os.DirFS(seedDir)
	}
	if d.Logger == nil {
		d.Logger = accounts.NoopLogger()
	}
	return d
}

// PathFor returns the data root of handle
func (d *Directories) PathFor(handle string) string {
	return filepath.Join(d.Root, handle)
}

// AccountCreated implements accounts.ProvisionHook
func (d *Directories) AccountCreated(ctx context.Context, account *accounts.Account) error {
	root := d.PathFor(account.Handle)

	for _, sub := range append([]string{""}, d.Subdirectories...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account directory").
				WithMetadata(map[string]any{"handle": account.Handle, "dir": sub})
		}
	}

	if d.Seed == nil {
		return nil
	}

	copied := 0
	err := fs.WalkDir(d.Seed, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(root, filepath.FromSlash(path))
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		ok, err := copyIfMissing(d.Seed, path, target)
		if ok {
			copied++
		}
		return err
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to copy seed content").
			WithMetadata(map[string]any{"handle": account.Handle})
	}

	d.Logger.Info("account provisioned", "handle", account.Handle, "root", root, "seeded", copied)
	return nil
}

func copyIfMissing(src fs.FS, path, target string) (bool, error) {
	if _, err := os.Stat(target); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	in, err := src.Open(path)
	if err != nil {
		return false, err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, err
	}

	return true, out.Close()
}

// AvatarResolver serves the per account avatar path when the file
// exists and falls back to accounts.DefaultAvatar otherwise.
func (d *Directories) AvatarResolver(file string) accounts.AvatarResolver {
	return accounts.AvatarResolverFunc(func(handle string) string {
		if file == "" {
			return ""
		}
		if _, err := os.Stat(filepath.Join(d.PathFor(handle), "user", file)); err != nil {
			return ""
		}
		return filepath.ToSlash(filepath.Join("user", handle, file))
	})
}
