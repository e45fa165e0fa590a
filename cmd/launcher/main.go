package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/embercraft/launcher/internal/auth/flow"
	"github.com/embercraft/launcher/internal/auth/provider"
	"github.com/embercraft/launcher/internal/config"
	"github.com/embercraft/launcher/internal/session"
	"github.com/embercraft/launcher/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Embercraft Launcher %s

Usage: launcher <command>

Commands:
  login            Sign in with the provider account
  status           Show the current session
  logout           Delete the active profile's session
  prepare-launch   Refresh credentials and mint game tokens
  profiles         List launcher profiles
`, version.Version)
	os.Exit(2)
}

func dataDir() string {
	if dir := os.Getenv("LAUNCHER_DATA_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("Failed to locate config directory: %v", err)
	}
	return filepath.Join(base, "EmbercraftLauncher")
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	dir := dataDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := config.OpenProfileDB(filepath.Join(dir, "profiles.db"))
	if err != nil {
		log.Fatalf("Failed to open profile registry: %v", err)
	}
	profiles := config.NewProfileStore(db)
	ensureDefaultProfile(profiles)

	endpoints, err := config.LoadEndpoints(filepath.Join(dir, "launcher.yaml"))
	if err != nil {
		log.Fatalf("Invalid launcher configuration: %v", err)
	}

	client := provider.New(endpoints)
	manager, err := session.NewManager(session.NewFileStore(filepath.Join(dir, "sessions")), profiles, client)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "login":
		runLogin(ctx, client, manager, profiles)
	case "status":
		runStatus(ctx, manager)
	case "logout":
		if err := manager.Logout(); err != nil {
			log.Fatalf("Logout failed: %v", err)
		}
		fmt.Println("Logged out.")
	case "prepare-launch":
		runPrepareLaunch(ctx, manager)
	case "profiles":
		runProfiles(profiles)
	default:
		usage()
	}
}

func ensureDefaultProfile(profiles *config.ProfileStore) {
	if _, err := profiles.ActiveProfile(); errors.Is(err, config.ErrNoActiveProfile) {
		if _, err := profiles.CreateProfile("Player", false); err != nil {
			log.Fatalf("Failed to create default profile: %v", err)
		}
	}
}

func runLogin(ctx context.Context, client *provider.Client, manager *session.Manager, profiles *config.ProfileStore) {
	active, err := profiles.ActiveProfile()
	if err != nil {
		log.Fatalf("No active profile: %v", err)
	}

	controller := flow.New(client, manager, active.Name)
	sess, err := controller.Login(ctx)
	switch {
	case err == nil:
		fmt.Printf("Signed in as %s.\n", sess.Username)
	case errors.Is(err, provider.ErrNoGameProfile):
		fmt.Println("This account does not own a game profile yet. Set one up on the account page, then try again.")
		os.Exit(1)
	case errors.Is(err, flow.ErrCancelled):
		fmt.Println("Sign-in was cancelled.")
		os.Exit(1)
	default:
		fmt.Println("Sign-in did not complete. Check your connection and try again.")
		os.Exit(1)
	}
}

func runStatus(ctx context.Context, manager *session.Manager) {
	sess, err := manager.EnsureValid(ctx)
	if err != nil {
		// No usable active session; any official profile will do for
		// metadata queries.
		sess, err = manager.FindAnyValidOfficialSession(ctx)
	}
	if err != nil {
		fmt.Println("Not signed in.")
		os.Exit(1)
	}
	fmt.Printf("Signed in as %s (%s)\n", sess.Username, sess.UUID)
	fmt.Printf("Access token %s, expires %s\n", maskToken(sess.AccessToken), sess.ExpiresAt.Local())
}

func runPrepareLaunch(ctx context.Context, manager *session.Manager) {
	sess, err := manager.EnsureFreshForLaunch(ctx, session.RequireGameSession)
	switch {
	case err == nil:
		fmt.Printf("Ready to launch as %s (game session %s)\n", sess.Username, maskToken(sess.GameSessionToken))
	case errors.Is(err, session.ErrNoGameSession):
		fmt.Println("Could not obtain game credentials. Try again in a moment.")
		os.Exit(1)
	default:
		fmt.Println("Session expired. Please sign in again.")
		os.Exit(1)
	}
}

func runProfiles(profiles *config.ProfileStore) {
	all, err := profiles.AllProfiles()
	if err != nil {
		log.Fatalf("Failed to list profiles: %v", err)
	}
	for _, p := range all {
		marker := " "
		if p.IsActive {
			marker = "*"
		}
		kind := "offline"
		if p.IsOfficial {
			kind = "official"
		}
		fmt.Printf("%s %-20s %s\n", marker, p.Name, kind)
	}
}

func maskToken(t string) string {
	if len(t) < 20 {
		return t
	}
	return "..." + t[len(t)-12:]
}
