package feed

// Event names pushed to live sessions. The set is closed: inbound message
// names are matched exhaustively in the protocol handler, and outbound
// frames only ever carry one of these.
const (
	EventPhotoList = "photo_list"
	EventNewPhoto  = "new_photo"
	EventLike      = "like"
	EventUnlike    = "unlike"
	EventError     = "error"
)

// Event is one outbound frame. Data is marshaled as-is; it is immutable
// once the event is constructed.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// LikePayload is the data of a like/unlike event.
type LikePayload struct {
	PhotoID  int64  `json:"photo_id"`
	Username string `json:"username"`
}

func LikeEvent(photoID int64, username string, liked bool) Event {
	name := EventLike
	if !liked {
		name = EventUnlike
	}
	return Event{Name: name, Data: LikePayload{PhotoID: photoID, Username: username}}
}

func ErrorEvent(msg string) Event {
	return Event{Name: EventError, Data: map[string]string{"error": msg}}
}
