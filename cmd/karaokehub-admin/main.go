package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/globals"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

// A very simple CLI tool for the administration of karaokehub rooms and users.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms, users or queues",
		Long:  `show is for printing room, user or queue information.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Show: " + strings.Join(args, " "))
		},
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all rooms.`,
		Run: func(cmd *cobra.Command, args []string) {
			rooms, err := persister.GetRooms()
			if err != nil {
				globals.AppLogger.Error("could not get rooms", "error", err)
				return
			}
			printJSON(rooms)
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints detail information about the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{Id: args[0]}
			if err := persister.GetRoom(&room); err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			printJSON(room)
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `show users lists all users.`,
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			if err := persister.GetUser(&user); err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	var cmdShowQueue = &cobra.Command{
		Use:   "queue [room id]",
		Short: "Show queue",
		Long:  `show queue prints the ordered singing queue of the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			items, err := persister.GetQueue(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get queue", "error", err)
				return
			}
			printJSON(items)
		},
	}

	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "Delete room or user",
		Long:  `delete removes the user or room with a given user/room id.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Delete: " + strings.Join(args, " "))
		},
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given id including its queue.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := persister.DeleteQueueForRoom(args[0]); err != nil {
				globals.AppLogger.Error("could not delete queue", "error", err)
				return
			}
			if err := persister.DeleteRoom(args[0]); err != nil {
				globals.AppLogger.Error("could not delete room", "error", err)
				return
			}
		},
	}
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Delete user",
		Long:  `delete user removes the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := persister.DeleteUser(args[0]); err != nil {
				globals.AppLogger.Error("could not delete user", "error", err)
				return
			}
		},
	}

	var roomPassword string
	var userPassword string
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "Create/update room, user or song",
		Long:  `set creates or updates a room, user or song.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Set: " + strings.Join(args, " "))
		},
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room definition]",
		Short: "Set room",
		Long:  `set room creates or updates a room. If the room definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{}
			if err := decodeArg(args[0], &room); err != nil {
				globals.AppLogger.Error("could not decode room", "error", err)
				return
			}
			if room.Id == "" {
				globals.AppLogger.Error("no room id")
				return
			}
			oldRoom := types.Room{Id: room.Id}
			if err := persister.GetRoom(&oldRoom); err == nil {
				room.InviteToken = oldRoom.InviteToken
				room.PasswordHash = oldRoom.PasswordHash
			} else {
				globals.AppLogger.Info("room does not exist, creating")
			}
			if room.Status == "" {
				room.Status = types.RoomStatusOpen
			}
			if roomPassword != "" {
				hash, err := auth.HashPassword(roomPassword)
				if err != nil {
					globals.AppLogger.Error("could not hash password", "error", err)
					return
				}
				room.PasswordHash = hash
			}
			if err := persister.StoreRoom(room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
		},
	}
	cmdSetRoom.Flags().StringVar(&roomPassword, "password", "", "set the room entry password")
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{}
			if err := decodeArg(args[0], &user); err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if user.Id == "" {
				globals.AppLogger.Error("no user id")
				return
			}
			oldUser := types.User{Id: user.Id}
			if err := persister.GetUser(&oldUser); err == nil {
				user.PasswordHash = oldUser.PasswordHash
			}
			if user.Role == "" {
				user.Role = types.RoleStandard
			}
			if userPassword != "" {
				hash, err := auth.HashPassword(userPassword)
				if err != nil {
					globals.AppLogger.Error("could not hash password", "error", err)
					return
				}
				user.PasswordHash = hash
			}
			if err := persister.StoreUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	cmdSetUser.Flags().StringVar(&userPassword, "password", "", "set the user login password")
	var cmdSetSong = &cobra.Command{
		Use:   "song [song definition]",
		Short: "Set song",
		Long:  `set song creates or updates a catalog song. If the song definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			song := types.Song{}
			if err := decodeArg(args[0], &song); err != nil {
				globals.AppLogger.Error("could not decode song", "error", err)
				return
			}
			if song.Id == "" {
				globals.AppLogger.Error("no song id")
				return
			}
			if err := persister.StoreSong(song); err != nil {
				globals.AppLogger.Error("could not store song", "error", err)
				return
			}
		},
	}

	var cmdToken = &cobra.Command{
		Use:   "token [user id]",
		Short: "Issue a session token",
		Long:  `token prints a signed session token for the user with the given id, e.g. for API scripting.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			if err := persister.GetUser(&user); err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			sessions, err := auth.NewSessions(globalConfig.SessionSecret, globalConfig.SessionTTL())
			if err != nil {
				globals.AppLogger.Error("could not create session signer", "error", err)
				return
			}
			token, err := sessions.Issue(auth.SessionClaims{
				UserId:   user.Id,
				Username: user.Username,
				Name:     user.Name,
				IsAdmin:  user.IsAdmin(),
				IsGuest:  user.IsGuest(),
				RoomId:   user.RoomId,
			})
			if err != nil {
				globals.AppLogger.Error("could not issue token", "error", err)
				return
			}
			fmt.Println(token)
		},
	}

	var rootCmd = &cobra.Command{Use: "karaokehub-admin"}
	rootCmd.AddCommand(cmdShow, cmdDelete, cmdSet, cmdToken)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowUsers, cmdShowUser, cmdShowQueue)
	cmdDelete.AddCommand(cmdDeleteRoom, cmdDeleteUser)
	cmdSet.AddCommand(cmdSetRoom, cmdSetUser, cmdSetSong)
	_ = rootCmd.Execute()
}

func decodeArg(arg string, v interface{}) error {
	var r io.Reader
	if arg == "-" {
		r = os.Stdin
	} else {
		r = bytes.NewReader([]byte(arg))
	}
	return json.NewDecoder(r).Decode(v)
}

func printJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal output", "error", err)
		return
	}
	fmt.Println(string(data))
}
