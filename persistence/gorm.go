package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/types"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Persistence.DSN == "" {
		return nil, fmt.Errorf("no persistence dsn configured")
	}
	var dial gorm.Dialector
	switch cfg.Persistence.Type {
	case "postgres":
		dial = postgres.Open(cfg.Persistence.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.Persistence.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(&types.User{}, &types.Room{}, &types.QueueItem{}, &types.Song{}, &types.Star{}, &types.Counter{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func mapGormErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) StoreRoom(room types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) GetRoom(room *types.Room) error {
	return mapGormErr(p.db.First(room).Error)
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) DeleteRoom(roomId string) error {
	return p.db.Delete(&types.Room{Id: roomId}).Error
}

func (p *GormPersist) TouchRoom(roomId string, ts time.Time) error {
	return p.db.Model(&types.Room{Id: roomId}).Update("last_activity", ts).Error
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	return mapGormErr(p.db.First(user).Error)
}

func (p *GormPersist) GetUserByUsername(username string) (*types.User, error) {
	user := types.User{}
	err := p.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return &user, nil
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) DeleteUser(userId string) error {
	return p.db.Delete(&types.User{Id: userId}).Error
}

func (p *GormPersist) GetRoomGuests(roomId string) ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Where("room_id = ? AND role = ?", roomId, types.RoleGuest).Find(&users).Error
	return users, err
}

func (p *GormPersist) InsertQueueItem(item types.QueueItem) error {
	return p.db.Create(&item).Error
}

func (p *GormPersist) GetQueue(roomId string) ([]*types.QueueItem, error) {
	items := make([]*types.QueueItem, 0)
	err := p.db.Where("room_id = ?", roomId).Order("order_key").Find(&items).Error
	return items, err
}

func (p *GormPersist) GetQueueItem(item *types.QueueItem) error {
	return mapGormErr(p.db.First(item).Error)
}

func (p *GormPersist) UpdateQueueItemKey(queueId, orderKey string) error {
	res := p.db.Model(&types.QueueItem{Id: queueId}).Update("order_key", orderKey)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) DeleteQueueItem(queueId string) error {
	res := p.db.Delete(&types.QueueItem{Id: queueId})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) DeleteQueueForRoom(roomId string) error {
	return p.db.Where("room_id = ?", roomId).Delete(&types.QueueItem{}).Error
}

func (p *GormPersist) MaxOrderKey(roomId string) (string, error) {
	row := p.db.Model(&types.QueueItem{}).Where("room_id = ?", roomId).Select("MAX(order_key)").Row()
	var key sql.NullString
	if err := row.Scan(&key); err != nil {
		return "", err
	}
	return key.String, nil
}

func (p *GormPersist) QueueOwners(queueIds []string) (map[string]string, error) {
	items := make([]*types.QueueItem, 0)
	err := p.db.Where("id IN ?", queueIds).Find(&items).Error
	if err != nil {
		return nil, err
	}
	owners := make(map[string]string, len(items))
	for _, item := range items {
		owners[item.Id] = item.UserId
	}
	return owners, nil
}

func (p *GormPersist) StoreSong(song types.Song) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&song).Error
		if err != nil {
			return err
		}
		return bumpCounter(tx, counterLibrary)
	})
}

func (p *GormPersist) GetSong(song *types.Song) error {
	return mapGormErr(p.db.First(song).Error)
}

func (p *GormPersist) GetSongs() ([]*types.Song, error) {
	songs := make([]*types.Song, 0)
	err := p.db.Order("artist, title").Find(&songs).Error
	return songs, err
}

func (p *GormPersist) LibraryVersion() (int64, error) {
	return p.counterValue(counterLibrary)
}

func (p *GormPersist) AddStar(userId, songId string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&types.Star{UserId: userId, SongId: songId}).Error
		if err != nil {
			return err
		}
		return bumpCounter(tx, counterStarPrefix+userId)
	})
}

func (p *GormPersist) RemoveStar(userId, songId string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Delete(&types.Star{UserId: userId, SongId: songId}).Error
		if err != nil {
			return err
		}
		return bumpCounter(tx, counterStarPrefix+userId)
	})
}

func (p *GormPersist) GetStars(userId string) ([]string, error) {
	stars := make([]*types.Star, 0)
	err := p.db.Where("user_id = ?", userId).Find(&stars).Error
	if err != nil {
		return nil, err
	}
	songIds := make([]string, 0, len(stars))
	for _, s := range stars {
		songIds = append(songIds, s.SongId)
	}
	return songIds, nil
}

func (p *GormPersist) StarVersion(userId string) (int64, error) {
	return p.counterValue(counterStarPrefix + userId)
}

func bumpCounter(tx *gorm.DB, name string) error {
	counter := types.Counter{Name: name}
	err := tx.First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&types.Counter{Name: name, Value: 1}).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&counter).Update("value", counter.Value+1).Error
}

func (p *GormPersist) counterValue(name string) (int64, error) {
	counter := types.Counter{Name: name}
	err := p.db.First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (p *GormPersist) Close() error {
	return nil
}
