//go:build !js

package main

import (
	"errors"

	"github.com/sqweek/dialog"
)

var errFolderDialogCancelled = errors.New("folder dialog cancelled")

// pickScreenshotDir asks the user for a folder. It blocks until the dialog
// closes and must not run on the game loop.
func pickScreenshotDir(start string) (string, error) {
	dir, err := dialog.Directory().Title("Screenshot folder").SetStartDir(start).Browse()
	if err != nil {
		if err == dialog.Cancelled {
			return "", errFolderDialogCancelled
		}
		return "", err
	}
	return dir, nil
}
