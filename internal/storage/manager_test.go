// manager_test.go - Tests for storage layer
package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file from reader", func(t *testing.T) {
		store := createTestStore(t)

		content := "{@BATCH|588A|B}"
		info, err := store.Save("board.log", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "board.log" {
			t.Errorf("Expected name 'board.log', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}
		if info.ContentKey == "" {
			t.Error("Expected content key to be set")
		}
	})

	t.Run("identical content shares a content key", func(t *testing.T) {
		store := createTestStore(t)

		a, err := store.Save("a.log", strings.NewReader("{@BATCH|588A|B}"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		b, err := store.Save("b.log", strings.NewReader("{@BATCH|588A|B}"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		c, err := store.Save("c.log", strings.NewReader("{@BATCH|612C|A}"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if a.ContentKey != b.ContentKey {
			t.Errorf("Expected same key for identical content, got %s vs %s", a.ContentKey, b.ContentKey)
		}
		if a.ContentKey == c.ContentKey {
			t.Error("Expected different key for different content")
		}
	})

	t.Run("creates physical file", func(t *testing.T) {
		store := createTestStore(t)

		content := "Test content"
		info, err := store.Save("board.log", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content '%s', got '%s'", content, string(data))
		}
	})
}

func TestLocalStore_SaveBytes(t *testing.T) {
	store := createTestStore(t)

	data := []byte("payload from memory")
	info, err := store.SaveBytes("bytes.log", data)
	if err != nil {
		t.Fatalf("Failed to save bytes: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), info.Size)
	}

	saved, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID))
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if !bytes.Equal(saved, data) {
		t.Error("Saved data doesn't match original")
	}
}

func TestLocalStore_Get(t *testing.T) {
	t.Run("gets existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("board.log", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		retrieved, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file: %v", err)
		}
		if retrieved.ID != info.ID || retrieved.Name != info.Name {
			t.Errorf("Expected %v, got %v", info, retrieved)
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Get("non-existent-id"); err == nil {
			t.Error("Expected error for non-existent file")
		}
	})
}

func TestLocalStore_List(t *testing.T) {
	t.Run("limits results", func(t *testing.T) {
		store := createTestStore(t)

		for i := 0; i < 10; i++ {
			if _, err := store.Save("file.log", strings.NewReader("content")); err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
		}

		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}
		if len(files) != 3 {
			t.Errorf("Expected 3 files, got %d", len(files))
		}
	})

	t.Run("sorts by upload time descending", func(t *testing.T) {
		store := createTestStore(t)

		ids := make([]string, 3)
		for i := 0; i < 3; i++ {
			info, err := store.Save("file.log", strings.NewReader("content"))
			if err != nil {
				t.Fatalf("Failed to save file: %v", err)
			}
			ids[i] = info.ID
			time.Sleep(20 * time.Millisecond)
		}

		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}
		if files[0].ID != ids[2] {
			t.Error("Expected files to be sorted by time descending")
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("board.log", strings.NewReader("content"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}

		if _, err := store.Get(info.ID); err == nil {
			t.Error("Expected error when getting deleted file")
		}
		if _, err := os.Stat(filepath.Join(store.uploadDir, info.ID)); !os.IsNotExist(err) {
			t.Error("Physical file should be deleted")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if err := store.Delete("non-existent-id"); err == nil {
			t.Error("Expected error when deleting non-existent file")
		}
	})
}

func TestLocalStore_Rename(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("oldname.log", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	updated, err := store.Rename(info.ID, "newname.log")
	if err != nil {
		t.Fatalf("Failed to rename file: %v", err)
	}
	if updated.Name != "newname.log" {
		t.Errorf("Expected name 'newname.log', got %v", updated.Name)
	}

	retrieved, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if retrieved.Name != "newname.log" {
		t.Errorf("Expected persisted name 'newname.log', got %v", retrieved.Name)
	}

	if _, err := store.Rename("non-existent-id", "x"); err == nil {
		t.Error("Expected error when renaming non-existent file")
	}
}

func TestLocalStore_GetFilePath(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("board.log", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	path, err := store.GetFilePath(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file path: %v", err)
	}
	if path != filepath.Join(store.uploadDir, info.ID) {
		t.Errorf("Unexpected path: %s", path)
	}

	if _, err := store.GetFilePath("non-existent-id"); err == nil {
		t.Error("Expected error for non-existent file")
	}
}
