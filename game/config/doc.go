// Package config loads room profiles from a directory of JSON files.
//
// Each file names one profile; its base name is the profile ID. A room
// whose ID matches a profile runs with that profile, every other room runs
// with the default profile (hub.json if present, else the first valid file,
// else the built-in defaults).
//
// Profile format (all fields optional):
//
//	{
//	  "name": "Town Square",
//	  "description": "Shared social hub",
//	  "max_members": 100,
//	  "chat_history": 50,
//	  "max_chat_length": 200,
//	  "max_name_length": 32,
//	  "spawn": {"x": 320, "y": 240}
//	}
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	registry := room.NewRegistry(room.WithSettings(manager.Settings))
//
// Profiles are cached after the first read; RefreshCache forces a reload.
// Rooms that already exist keep the settings they were created with.
package config
