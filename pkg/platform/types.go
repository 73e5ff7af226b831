package platform

import (
	"fmt"
	"time"
)

// Permission is the subset of platform permission bits the bot cares about.
type Permission uint

const (
	PermViewChannel Permission = 1 << iota
	PermSendMessages
	PermReadHistory
	PermManageChannels
)

var permissionNames = map[Permission]string{
	PermViewChannel:    "VIEW_CHANNEL",
	PermSendMessages:   "SEND_MESSAGES",
	PermReadHistory:    "READ_MESSAGE_HISTORY",
	PermManageChannels: "MANAGE_CHANNELS",
}

func (p Permission) Has(need Permission) bool {
	return p&need == need
}

// Names expands the set bits into their platform identifiers.
func (p Permission) Names() []string {
	var names []string
	for bit, name := range permissionNames {
		if p.Has(bit) {
			names = append(names, name)
		}
	}
	return names
}

// Overwrite grants or denies permissions for one role or user in a channel.
type Overwrite struct {
	TargetId string
	Allow    Permission
	Deny     Permission
}

type Channel struct {
	Id       string
	Name     string
	Topic    string
	ParentId string
}

type Attachment struct {
	Name string
	Url  string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	FooterIcon  string
	AuthorName  string
	AuthorIcon  string
	AuthorUrl   string
	Thumbnail   string
	Image       string
	Timestamp   time.Time
}

type Message struct {
	Id          string
	ChannelId   string
	AuthorId    string
	AuthorTag   string
	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
	Embeds      []Embed
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

type Button struct {
	CustomId string
	Label    string
	Emoji    string
	Style    ButtonStyle
	Disabled bool
}

type File struct {
	Name string
	Data []byte
}

// OutgoingMessage carries everything a send can attach. Buttons form a
// single control row; the platform renders them in order.
type OutgoingMessage struct {
	Content        string
	Embeds         []Embed
	Buttons        []Button
	Files          []File
	MentionRoleIds []string
}

type CreateChannelRequest struct {
	Name       string
	ParentId   string
	Topic      string
	Overwrites []Overwrite
	Reason     string
}

// Capability is the result of the consolidated permission probe. Missing
// holds the names of the permissions the bot lacks.
type Capability struct {
	Ok      bool
	Missing []string
}

// ChannelLink builds the deep link users can click to jump to a channel.
func ChannelLink(guildId, channelId string) string {
	return fmt.Sprintf("https://discord.com/channels/%v/%v", guildId, channelId)
}
