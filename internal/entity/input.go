package entity

import "strings"

// CreateUser is the body of a user creation.
type CreateUser struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Missing returns the names of required fields that are empty.
func (c CreateUser) Missing() []string {
	return missing("firstName", c.FirstName, "lastName", c.LastName, "email", c.Email)
}

func (c CreateUser) Row() User {
	return User{FirstName: c.FirstName, LastName: c.LastName, Email: c.Email, SubscribedToUserIDs: []string{}}
}

type CreatePost struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

func (c CreatePost) Missing() []string {
	return missing("title", c.Title, "content", c.Content, "userId", c.UserID)
}

func (c CreatePost) Row() Post {
	return Post{Title: c.Title, Content: c.Content, UserID: c.UserID}
}

type CreateProfile struct {
	Avatar       string `json:"avatar"`
	Sex          string `json:"sex"`
	Birthday     string `json:"birthday"`
	Country      string `json:"country"`
	Street       string `json:"street"`
	City         string `json:"city"`
	MemberTypeID string `json:"memberTypeId"`
	UserID       string `json:"userId"`
}

func (c CreateProfile) Missing() []string {
	return missing(
		"avatar", c.Avatar, "sex", c.Sex, "birthday", c.Birthday, "country", c.Country,
		"street", c.Street, "city", c.City, "memberTypeId", c.MemberTypeID, "userId", c.UserID,
	)
}

func (c CreateProfile) Row() Profile {
	return Profile{
		Avatar: c.Avatar, Sex: c.Sex, Birthday: c.Birthday, Country: c.Country,
		Street: c.Street, City: c.City, MemberTypeID: c.MemberTypeID, UserID: c.UserID,
	}
}

// missing takes (name, value) pairs.
func missing(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}
