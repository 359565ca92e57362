package filter

/*
Env is the evaluation environment for broadcast audience filters.
Filter expressions are compiled against this struct; renaming a property
breaks every stored filter string, so treat the shape as frozen.
*/

type User struct {
	Id      string
	Name    string
	IsAdmin bool
	IsGuest bool
}

type Room struct {
	Id      string
	OwnerId string
}

type Env struct {
	Room   Room
	Sender User
	Target User
}

// Common audience filters used by the hub. Excluding the originating
// connection from a relay is not a filter concern: the hub skips the
// origin connection itself, so other connections of the same user still
// receive the message.
const (
	// SenderOnly addresses all connections of the originating user.
	SenderOnly = `Target.Id == Sender.Id`
	// ManagersOnly addresses admins and the room owner.
	ManagersOnly = `Target.IsAdmin || Target.Id == Room.OwnerId`
)
