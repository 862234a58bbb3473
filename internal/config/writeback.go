package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"heimdall/internal/domain"

	"github.com/pelletier/go-toml/v2"
)

// Update performs a read-modify-write of the config file as a generic TOML document.
// Keys unknown to Config survive the round trip. The mutated document must still validate.
// Params: config path and mutation callback over the decoded document.
// Returns: read/decode/mutate/validate/write error; the file is untouched on error.
func Update(path string, mutate func(doc map[string]any) error) error {
	doc := map[string]any{}
	body, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode config file %q: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := mutate(doc); err != nil {
		return err
	}

	next, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if _, err := Parse(next); err != nil {
		return fmt.Errorf("updated config is invalid: %w", err)
	}
	return writeFileAtomic(path, next, 0o600)
}

// SaveSubscribers replaces notify.telegram.subscribers in the config file.
// Params: config path and ordered subscriber list.
// Returns: write error.
func SaveSubscribers(path string, subscribers []domain.Subscriber) error {
	return Update(path, func(doc map[string]any) error {
		telegram := table(table(doc, "notify"), "telegram")
		list := make([]map[string]any, 0, len(subscribers))
		for _, sub := range subscribers {
			list = append(list, map[string]any{
				"chat_id":       sub.ChatID,
				"username":      sub.Username,
				"first_name":    sub.FirstName,
				"subscribed_at": sub.SubscribedAt.UTC(),
				"approved":      sub.Approved,
			})
		}
		telegram["subscribers"] = list
		return nil
	})
}

// SaveEmail writes the SMTP section, keeping its retry table.
// Params: config path and email settings.
// Returns: write error.
func SaveEmail(path string, email EmailNotifier) error {
	return Update(path, func(doc map[string]any) error {
		section := table(table(doc, "notify"), "email")
		section["enabled"] = email.Enabled
		section["smtp_server"] = email.SMTPServer
		section["smtp_port"] = int64(email.SMTPPort)
		section["use_tls"] = email.UseTLS
		section["username"] = email.Username
		section["password"] = email.Password
		section["sender"] = email.Sender
		section["recipients"] = append([]string{}, email.Recipients...)
		if email.LogoPath != "" {
			section["logo_path"] = email.LogoPath
		}
		return nil
	})
}

// SaveTelegram writes the bot settings, keeping subscribers and retry table.
// Params: config path and telegram settings.
// Returns: write error.
func SaveTelegram(path string, telegram TelegramNotifier) error {
	return Update(path, func(doc map[string]any) error {
		section := table(table(doc, "notify"), "telegram")
		section["enabled"] = telegram.Enabled
		section["bot_token"] = telegram.BotToken
		section["auto_approve"] = telegram.AutoApprove
		if telegram.APIBase != "" {
			section["api_base"] = telegram.APIBase
		}
		return nil
	})
}

// table returns doc[key] as a nested table, creating it when absent.
func table(doc map[string]any, key string) map[string]any {
	if existing, ok := doc[key].(map[string]any); ok {
		return existing
	}
	created := map[string]any{}
	doc[key] = created
	return created
}

// writeFileAtomic writes body to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, body []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}
