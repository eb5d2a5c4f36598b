package bird

import (
	"encoding/json"
	"strings"
	"time"
)

// Action is the wire tag of a frame.
type Action string

const (
	ActionEnter             Action = "enter"
	ActionChat              Action = "chat"
	ActionAnnouncement      Action = "announcement"
	ActionGainContactList   Action = "gain_user_list"
	ActionContactList       Action = "user_list"
	ActionGainAvatarList    Action = "gain_avatar_list"
	ActionAvatarList        Action = "avatar_list"
	ActionRoomMember        Action = "group_user_list"
	ActionModifyRoomTopic   Action = "modify_group_name"
	ActionRoomQrcode        Action = "group_qrcode"
	ActionCreateRoom        Action = "create_group"
	ActionRoomQuit          Action = "quit_group"
	ActionAddRoomMember     Action = "add_group_member"
	ActionDeleteRoomMember  Action = "del_group_member"
	ActionFriendshipAdd     Action = "add_friend"
	ActionFriendshipAccept  Action = "accept_friend"
	ActionModifyContactNick Action = "modify_nick"
	ActionHeartbeat         Action = "heartbeat"
)

// replyActions are answered by the backend and never surface as chat messages.
var replyActions = map[Action]struct{}{
	ActionContactList:     {},
	ActionRoomMember:      {},
	ActionAvatarList:      {},
	ActionAnnouncement:    {},
	ActionModifyRoomTopic: {},
	ActionRoomQrcode:      {},
	ActionCreateRoom:      {},
	ActionRoomQuit:        {},
	ActionFriendshipAdd:   {},
	ActionHeartbeat:       {},
}

// IsReply reports whether frames with this action answer an outbound call.
func (a Action) IsReply() bool {
	_, ok := replyActions[a]
	return ok
}

// Type identifies the side of the bridge a frame comes from.
type Type string

const (
	TypeWeb Type = "web"
	TypeIOS Type = "ios"
)

// ContentType is the cnt_type of a chat frame.
type ContentType int

const (
	ContentText      ContentType = 0
	ContentPicture   ContentType = 1
	ContentAudio     ContentType = 2
	ContentLink      ContentType = 495
	ContentFile      ContentType = 6000
	ContentVideo     ContentType = 6001
	ContentSystem    ContentType = 10000
	ContentRedPacket ContentType = 492001
	ContentAt        ContentType = 3110
)

// SystemSenderName is the sender name the backend uses for announcements.
const SystemSenderName = "系统消息"

// ContactType discriminates the entries of a contact list.
type ContactType string

const (
	ContactTypeContact ContactType = "0"
	ContactTypeRoom    ContactType = "1"
)

// Status codes of reply frames.
const (
	StatusOK     = 0
	StatusFailed = 1
)

// HeartbeatState is the payload of a heartbeat frame.
type HeartbeatState string

const (
	HeartbeatOnline  HeartbeatState = "online"
	HeartbeatOffline HeartbeatState = "offline"
	HeartbeatClosing HeartbeatState = "closing"
)

// outboundFrame is every frame the client writes.
type outboundFrame struct {
	ID          string      `json:"id"`
	BotID       string      `json:"botId"`
	Type        Type        `json:"type"`
	Action      Action      `json:"action"`
	UID         string      `json:"u_id,omitempty"`
	ToID        string      `json:"to_id,omitempty"`
	ToType      Type        `json:"to_type,omitempty"`
	Content     string      `json:"content,omitempty"`
	ContentType ContentType `json:"cnt_type,omitempty"`
	CallID      string      `json:"call_id,omitempty"`
}

// Inbound is a frame read from the backend. Raw keeps the complete frame for
// decoding into the concrete payload type.
type Inbound struct {
	Action  Action          `json:"action"`
	Status  *int            `json:"status,omitempty"`
	Message string          `json:"msg,omitempty"`
	UID     string          `json:"u_id,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func parseInbound(data []byte) (*Inbound, error) {
	in := &Inbound{}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, err
	}
	in.Raw = append(json.RawMessage(nil), data...)
	return in, nil
}

// Decode unmarshals the complete frame into v.
func (in *Inbound) Decode(v any) error {
	return json.Unmarshal(in.Raw, v)
}

// MessagePayload is an inbound chat frame.
type MessagePayload struct {
	Action       Action       `json:"action"`
	ToType       Type         `json:"to_type"`
	SType        Type         `json:"s_type"`
	ID           string       `json:"id"`
	ContentType  *ContentType `json:"cnt_type,omitempty"`
	MType        string       `json:"m_type,omitempty"`
	Content      string       `json:"content"`
	MemberID     string       `json:"mem_id"`
	UID          string       `json:"u_id"`
	Type         Type         `json:"type"`
	Name         string       `json:"name"`
	MsgID        string       `json:"msgId"`
	LinkTitle    string       `json:"m_nsTitle,omitempty"`
	LinkDesc     string       `json:"m_nsDesc,omitempty"`
	LinkThumbURL string       `json:"m_nsThumbUrl,omitempty"`
}

// Kind returns the content type, text when the frame carries none.
func (m *MessagePayload) Kind() ContentType {
	if m.ContentType == nil {
		return ContentText
	}
	return *m.ContentType
}

// ContactPayload describes a contact or a room in the contact list.
type ContactPayload struct {
	CType                  ContactType `json:"c_type"`
	SetToTop               bool        `json:"set_to_top"`
	ID                     string      `json:"id"`
	Remark                 string      `json:"c_remark"`
	Nick                   string      `json:"nick"`
	LastUpdate             int64       `json:"m_uiLastUpdate"`
	AllowOwnerApproveValue bool        `json:"allow_owner_approve_value"`
	Type                   Type        `json:"type"`
	MuteSession            bool        `json:"mute_session"`
	Name                   string      `json:"name,omitempty"`
	Avatar                 string      `json:"avatar,omitempty"`
	IsFriend               int         `json:"isFriend,omitempty"`
}

// RoomMemberPayload is one member of a room.
type RoomMemberPayload struct {
	IsMyFriend int    `json:"is_myfriend"`
	WechatID   string `json:"wechat_id"`
	WechatImg  string `json:"wechat_img"`
	RealNick   string `json:"wechat_real_nick"`
	Nick       string `json:"wechat_nick"`
}

// RoomMemberSet maps member contact ids to their payloads.
type RoomMemberSet map[string]RoomMemberPayload

// ContactList is the reply to gain_user_list.
type ContactList struct {
	ID     string           `json:"id"`
	List   []ContactPayload `json:"list"`
	Type   Type             `json:"type"`
	Action Action           `json:"action"`
}

// RoomMemberList is the reply to group_user_list.
type RoomMemberList struct {
	ID     string              `json:"id"`
	UID    string              `json:"u_id,omitempty"`
	List   []RoomMemberPayload `json:"list"`
	Type   Type                `json:"type"`
	Action Action              `json:"action"`
}

// RoomMembers is a normalised RoomMemberList.
type RoomMembers struct {
	RoomID  string
	Members RoomMemberSet
}

// Avatar is one image url of an avatar batch.
type Avatar struct {
	ID  string `json:"id"`
	Img string `json:"img"`
}

// AvatarList is one batch of avatars pushed by the backend.
type AvatarList struct {
	ID     string   `json:"id"`
	List   []Avatar `json:"list"`
	Type   Type     `json:"type"`
	Action Action   `json:"action"`
}

// Ack is the reply to room and friendship operations.
type Ack struct {
	Action  Action `json:"action"`
	Status  int    `json:"status"`
	Message string `json:"msg,omitempty"`
	UID     string `json:"u_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// Heartbeat is the periodic liveness signal of the backend.
type Heartbeat struct {
	ID     string         `json:"id"`
	Action Action         `json:"action"`
	State  HeartbeatState `json:"state"`
}

// NormalizeID strips the "<bot>$" prefix of composite wire ids.
func NormalizeID(id string) string {
	if i := strings.Index(id, "$"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// IsRoomID reports whether id names a room.
func IsRoomID(id string) bool {
	return id != "" && strings.HasSuffix(id, "@chatroom")
}

// IsContactID reports whether id names a contact.
func IsContactID(id string) bool {
	return id != "" && !IsRoomID(id)
}

// MemberToContact synthesizes a contact from a room member, so that people
// only ever seen as room members are addressable as contacts.
func MemberToContact(member RoomMemberPayload) ContactPayload {
	return ContactPayload{
		CType:      ContactTypeContact,
		ID:         member.WechatID,
		Nick:       member.RealNick,
		LastUpdate: time.Now().UnixMilli(),
		Type:       TypeIOS,
		Name:       member.Nick,
		Avatar:     member.WechatImg,
		IsFriend:   member.IsMyFriend,
	}
}

// MessageKind is the upstream classification of a chat frame.
type MessageKind int

const (
	MessageUnknown MessageKind = iota
	MessageText
	MessageImage
	MessageAudio
	MessageURL
	MessageAttachment
)

// MessageKindOf maps a content type to its upstream message kind.
func MessageKindOf(t ContentType) MessageKind {
	switch t {
	case ContentText, ContentAt:
		return MessageText
	case ContentPicture:
		return MessageImage
	case ContentAudio:
		return MessageAudio
	case ContentLink:
		return MessageURL
	case ContentFile:
		return MessageAttachment
	default:
		return MessageUnknown
	}
}
