package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nadzzz/duomode/internal/config"
)

// DriveUploader copies artifacts into a Drive folder using service
// account credentials.
type DriveUploader struct {
	srv      *gdrive.Service
	folderID string
}

// NewDriveUploader reads the credentials file and builds the Drive client.
func NewDriveUploader(ctx context.Context, cfg config.DriveConfig) (*DriveUploader, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("drive: credentials_file is required")
	}
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("drive: read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, b, gdrive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("drive: parse credentials: %w", err)
	}
	srv, err := gdrive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("drive: new service: %w", err)
	}
	return &DriveUploader{srv: srv, folderID: cfg.FolderID}, nil
}

// Upload creates a new Drive file and returns its web link.
func (u *DriveUploader) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	file := &gdrive.File{Name: name, MimeType: contentType}
	if u.folderID != "" {
		file.Parents = []string{u.folderID}
	}

	created, err := u.srv.Files.Create(file).
		Context(ctx).
		Fields("id", "webViewLink").
		Media(bytes.NewReader(data), googleapi.ChunkSize(2*1024*1024), googleapi.ContentType(contentType)).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload failed: %w", err)
	}
	if created.WebViewLink != "" {
		return created.WebViewLink, nil
	}
	return "https://drive.google.com/file/d/" + created.Id + "/view", nil
}
