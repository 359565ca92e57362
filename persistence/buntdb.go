package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/types"
)

// BuntDBPersist is the embedded backend: a single buntdb file (or
// ":memory:"), entities stored as JSON under typed key prefixes.
type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	dsn := cfg.Persistence.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := buntdb.Open(dsn)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("queue_room", "queue:*", buntdb.IndexJSON("room_id"))
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		db.Close()
		return nil, err
	}
	err = db.CreateIndex("users_username", "user:*", buntdb.IndexJSON("username"))
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		db.Close()
		return nil, err
	}
	return &BuntDBPersist{db: db}, nil
}

func mapBuntErr(err error) error {
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) setJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) getJSON(key string, v interface{}) error {
	err := p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), v)
	})
	return mapBuntErr(err)
}

func (p *BuntDBPersist) StoreRoom(room types.Room) error {
	return p.setJSON("room:"+room.Id, room)
}

func (p *BuntDBPersist) GetRoom(room *types.Room) error {
	if room.Id == "" {
		return fmt.Errorf("no room id")
	}
	return p.getJSON("room:"+room.Id, room)
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil {
				rooms = append(rooms, room)
			}
			return true
		})
	})
	return rooms, err
}

func (p *BuntDBPersist) DeleteRoom(roomId string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("room:" + roomId)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (p *BuntDBPersist) TouchRoom(roomId string, ts time.Time) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get("room:" + roomId)
		if err != nil {
			return err
		}
		room := types.Room{}
		if err := json.Unmarshal([]byte(raw), &room); err != nil {
			return err
		}
		room.LastActivity = ts
		updated, err := json.Marshal(room)
		if err != nil {
			return err
		}
		_, _, err = tx.Set("room:"+roomId, string(updated), nil)
		return err
	})
	return mapBuntErr(err)
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	return p.setJSON("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.getJSON("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUserByUsername(username string) (*types.User, error) {
	var user *types.User
	err := p.db.View(func(tx *buntdb.Tx) error {
		pivot := fmt.Sprintf(`{"username":%q}`, username)
		return tx.AscendEqual("users_username", pivot, func(key, val string) bool {
			u := &types.User{}
			if err := json.Unmarshal([]byte(val), u); err == nil {
				user = u
			}
			return false
		})
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, val string) bool {
			user := &types.User{}
			if err := json.Unmarshal([]byte(val), user); err == nil {
				users = append(users, user)
			}
			return true
		})
	})
	return users, err
}

func (p *BuntDBPersist) DeleteUser(userId string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("user:" + userId)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (p *BuntDBPersist) GetRoomGuests(roomId string) ([]*types.User, error) {
	users, err := p.GetUsers()
	if err != nil {
		return nil, err
	}
	guests := make([]*types.User, 0)
	for _, u := range users {
		if u.RoomId == roomId && u.IsGuest() {
			guests = append(guests, u)
		}
	}
	return guests, nil
}

func (p *BuntDBPersist) InsertQueueItem(item types.QueueItem) error {
	return p.setJSON("queue:"+item.Id, item)
}

func (p *BuntDBPersist) GetQueue(roomId string) ([]*types.QueueItem, error) {
	items := make([]*types.QueueItem, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		pivot := fmt.Sprintf(`{"room_id":%q}`, roomId)
		return tx.AscendEqual("queue_room", pivot, func(key, val string) bool {
			item := &types.QueueItem{}
			if err := json.Unmarshal([]byte(val), item); err == nil {
				items = append(items, item)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].OrderKey < items[j].OrderKey })
	return items, nil
}

func (p *BuntDBPersist) GetQueueItem(item *types.QueueItem) error {
	if item.Id == "" {
		return fmt.Errorf("no queue id")
	}
	return p.getJSON("queue:"+item.Id, item)
}

func (p *BuntDBPersist) UpdateQueueItemKey(queueId, orderKey string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get("queue:" + queueId)
		if err != nil {
			return err
		}
		item := types.QueueItem{}
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return err
		}
		item.OrderKey = orderKey
		updated, err := json.Marshal(item)
		if err != nil {
			return err
		}
		_, _, err = tx.Set("queue:"+queueId, string(updated), nil)
		return err
	})
	return mapBuntErr(err)
}

func (p *BuntDBPersist) DeleteQueueItem(queueId string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("queue:" + queueId)
		return err
	})
	return mapBuntErr(err)
}

func (p *BuntDBPersist) DeleteQueueForRoom(roomId string) error {
	items, err := p.GetQueue(roomId)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, item := range items {
			if _, err := tx.Delete("queue:" + item.Id); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) MaxOrderKey(roomId string) (string, error) {
	items, err := p.GetQueue(roomId)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	return items[len(items)-1].OrderKey, nil
}

func (p *BuntDBPersist) QueueOwners(queueIds []string) (map[string]string, error) {
	owners := make(map[string]string, len(queueIds))
	err := p.db.View(func(tx *buntdb.Tx) error {
		for _, id := range queueIds {
			raw, err := tx.Get("queue:" + id)
			if errors.Is(err, buntdb.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			item := types.QueueItem{}
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return err
			}
			owners[id] = item.UserId
		}
		return nil
	})
	return owners, err
}

func (p *BuntDBPersist) StoreSong(song types.Song) error {
	raw, err := json.Marshal(song)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set("song:"+song.Id, string(raw), nil); err != nil {
			return err
		}
		return bumpBuntCounter(tx, counterLibrary)
	})
}

func (p *BuntDBPersist) GetSong(song *types.Song) error {
	if song.Id == "" {
		return fmt.Errorf("no song id")
	}
	return p.getJSON("song:"+song.Id, song)
}

func (p *BuntDBPersist) GetSongs() ([]*types.Song, error) {
	songs := make([]*types.Song, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("song:*", func(key, val string) bool {
			song := &types.Song{}
			if err := json.Unmarshal([]byte(val), song); err == nil {
				songs = append(songs, song)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(songs, func(i, j int) bool {
		if songs[i].Artist != songs[j].Artist {
			return songs[i].Artist < songs[j].Artist
		}
		return songs[i].Title < songs[j].Title
	})
	return songs, nil
}

func (p *BuntDBPersist) LibraryVersion() (int64, error) {
	return p.counterValue(counterLibrary)
}

func (p *BuntDBPersist) AddStar(userId, songId string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		star := types.Star{UserId: userId, SongId: songId}
		raw, err := json.Marshal(star)
		if err != nil {
			return err
		}
		if _, _, err := tx.Set("star:"+userId+":"+songId, string(raw), nil); err != nil {
			return err
		}
		return bumpBuntCounter(tx, counterStarPrefix+userId)
	})
}

func (p *BuntDBPersist) RemoveStar(userId, songId string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete("star:" + userId + ":" + songId); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		return bumpBuntCounter(tx, counterStarPrefix+userId)
	})
}

func (p *BuntDBPersist) GetStars(userId string) ([]string, error) {
	songIds := make([]string, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("star:"+userId+":*", func(key, val string) bool {
			star := types.Star{}
			if err := json.Unmarshal([]byte(val), &star); err == nil {
				songIds = append(songIds, star.SongId)
			}
			return true
		})
	})
	return songIds, err
}

func (p *BuntDBPersist) StarVersion(userId string) (int64, error) {
	return p.counterValue(counterStarPrefix + userId)
}

func bumpBuntCounter(tx *buntdb.Tx, name string) error {
	current := int64(0)
	raw, err := tx.Get("counter:" + name)
	if err == nil {
		current, _ = strconv.ParseInt(raw, 10, 64)
	} else if !errors.Is(err, buntdb.ErrNotFound) {
		return err
	}
	_, _, err = tx.Set("counter:"+name, strconv.FormatInt(current+1, 10), nil)
	return err
}

func (p *BuntDBPersist) counterValue(name string) (int64, error) {
	value := int64(0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get("counter:" + name)
		if err != nil {
			return err
		}
		value, err = strconv.ParseInt(raw, 10, 64)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return 0, nil
	}
	return value, err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
