package bird

import (
	"context"
	"strings"
	"time"
)

// Conn is a connection to the bird backend. Its lifetime starts with Dial()
// and ends when the user calls Close(), the websocket breaks or the backend
// does not send a heartbeat within the liveness timeout.
//
// Calls wait for the reply frame of their kind. The backend does not echo a
// request id, so replies are matched to the oldest pending call of the same
// kind. Callers which need strict pairing of same kind calls have to
// serialize them, see Queue.
type Conn interface {
	State() State
	Connected() bool
	BotID() string
	LastReceived() time.Time

	On(topic string, fn any) error
	Once(topic string, fn any) error
	Off(topic string, fn any) error

	SendMessage(ctx context.Context, to, content string, contentType ContentType) error
	SyncContactAndRoom(ctx context.Context) (ContactList, error)
	SyncRoomMembers(ctx context.Context, roomID string) (RoomMembers, error)
	GetAvatar(ctx context.Context) error

	DeleteChatRoomMember(ctx context.Context, roomID, contactID string) error
	AddChatRoomMember(ctx context.Context, roomID, contactID string) error
	ModifyRoomTopic(ctx context.Context, roomID, topic string) error
	CreateRoom(ctx context.Context, contactIDs []string) (string, error)
	RoomQuit(ctx context.Context, roomID string) error
	RoomQrcode(ctx context.Context, roomID string) (string, error)
	SetAnnouncement(ctx context.Context, roomID, text string) error
	ModifyContactAlias(ctx context.Context, name string) error
	FriendshipAdd(ctx context.Context, contactID, hello string) error
	FriendshipAccept(ctx context.Context, friendshipID string) error

	Close() error
}

func (c *conn) State() State {
	c.mxState.RLock()
	closed := c.isClosed
	c.mxState.RUnlock()

	if closed {
		return StateClosed
	}
	switch c.live.current() {
	case livenessUp:
		return StateUp
	case livenessSuspectedDown, livenessTimedOut:
		return StateBroken
	default:
		return StateWaitingForRemote
	}
}

func (c *conn) Connected() bool {
	c.mxState.RLock()
	defer c.mxState.RUnlock()

	return c.ws != nil && !c.isClosed && c.ctx.Err() == nil
}

func (c *conn) BotID() string {
	return c.botID
}

func (c *conn) LastReceived() time.Time {
	c.mxState.RLock()
	defer c.mxState.RUnlock()

	return c.lastReceived
}

// SendMessage is fire and forget, the backend does not acknowledge chat frames.
func (c *conn) SendMessage(ctx context.Context, to, content string, contentType ContentType) error {
	_, err := c.call(ctx, KindSendMessage, outboundFrame{
		ToID:        to,
		UID:         to,
		ToType:      TypeIOS,
		Content:     content,
		ContentType: contentType,
	}, nil)
	return err
}

func (c *conn) SyncContactAndRoom(ctx context.Context) (ContactList, error) {
	return callAndDecode[ContactList](ctx, c, KindSyncContactAndRoom, outboundFrame{}, nil)
}

func (c *conn) SyncRoomMembers(ctx context.Context, roomID string) (RoomMembers, error) {
	list, err := callAndDecode[RoomMemberList](ctx, c, KindSyncRoomMembers, outboundFrame{
		UID: roomID,
	}, matchRoom(roomID))
	if err != nil {
		return RoomMembers{}, err
	}
	members := RoomMembers{
		RoomID:  roomID,
		Members: make(RoomMemberSet, len(list.List)),
	}
	for _, member := range list.List {
		contactID := NormalizeID(member.WechatID)
		member.WechatID = contactID
		members.Members[contactID] = member
	}
	return members, nil
}

// GetAvatar asks the backend to push all avatars. They arrive as EventAvatar
// batches, the backend does not signal the last one.
func (c *conn) GetAvatar(ctx context.Context) error {
	_, err := c.call(ctx, KindGetAvatar, outboundFrame{}, nil)
	return err
}

func (c *conn) DeleteChatRoomMember(ctx context.Context, roomID, contactID string) error {
	_, err := c.call(ctx, KindDeleteChatRoomMember, outboundFrame{
		UID:  roomID,
		ToID: contactID,
	}, nil)
	return err
}

func (c *conn) AddChatRoomMember(ctx context.Context, roomID, contactID string) error {
	_, err := c.call(ctx, KindAddChatRoomMember, outboundFrame{
		UID:  roomID,
		ToID: contactID,
	}, nil)
	return err
}

func (c *conn) ModifyRoomTopic(ctx context.Context, roomID, topic string) error {
	_, err := c.call(ctx, KindModifyRoomTopic, outboundFrame{
		UID:     roomID,
		Content: topic,
	}, matchRoom(roomID))
	return err
}

// CreateRoom returns the id of the new room.
func (c *conn) CreateRoom(ctx context.Context, contactIDs []string) (string, error) {
	ack, err := callAndDecode[Ack](ctx, c, KindCreateRoom, outboundFrame{
		Content: strings.Join(contactIDs, ","),
	}, nil)
	if err != nil {
		return "", err
	}
	return NormalizeID(ack.UID), nil
}

func (c *conn) RoomQuit(ctx context.Context, roomID string) error {
	_, err := c.call(ctx, KindRoomQuit, outboundFrame{
		UID: roomID,
	}, matchRoom(roomID))
	return err
}

// RoomQrcode returns the url of the qrcode image of the room.
func (c *conn) RoomQrcode(ctx context.Context, roomID string) (string, error) {
	ack, err := callAndDecode[Ack](ctx, c, KindRoomQrcode, outboundFrame{
		UID: roomID,
	}, matchRoom(roomID))
	return ack.Content, err
}

func (c *conn) SetAnnouncement(ctx context.Context, roomID, text string) error {
	_, err := c.call(ctx, KindSetAnnouncement, outboundFrame{
		UID:     roomID,
		Content: text,
	}, matchRoom(roomID))
	return err
}

// ModifyContactAlias changes the nick name of the bot itself.
func (c *conn) ModifyContactAlias(ctx context.Context, name string) error {
	_, err := c.call(ctx, KindModifyContactAlias, outboundFrame{
		Content: name,
	}, nil)
	return err
}

func (c *conn) FriendshipAdd(ctx context.Context, contactID, hello string) error {
	_, err := c.call(ctx, KindFriendshipAdd, outboundFrame{
		UID:     contactID,
		ToID:    contactID,
		Content: hello,
	}, matchRoom(contactID))
	return err
}

func (c *conn) FriendshipAccept(ctx context.Context, friendshipID string) error {
	_, err := c.call(ctx, KindFriendshipAccept, outboundFrame{
		UID: friendshipID,
	}, nil)
	return err
}

// matchRoom accepts replies for id or replies which do not name an id at all.
func matchRoom(id string) func(*Inbound) bool {
	return func(in *Inbound) bool {
		return in.UID == "" || NormalizeID(in.UID) == NormalizeID(id)
	}
}
