package entity

// Patches carry only the fields a caller supplied; nil means "leave as is".

type UserPatch struct {
	FirstName           *string   `json:"firstName,omitempty"`
	LastName            *string   `json:"lastName,omitempty"`
	Email               *string   `json:"email,omitempty"`
	SubscribedToUserIDs *[]string `json:"subscribedToUserIds,omitempty"`
}

func (p UserPatch) Apply(u User) User {
	set(&u.FirstName, p.FirstName)
	set(&u.LastName, p.LastName)
	set(&u.Email, p.Email)
	if p.SubscribedToUserIDs != nil {
		u.SubscribedToUserIDs = append([]string{}, (*p.SubscribedToUserIDs)...)
	}
	return u
}

type PostPatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

func (p PostPatch) Apply(post Post) Post {
	set(&post.Title, p.Title)
	set(&post.Content, p.Content)
	return post
}

type ProfilePatch struct {
	Avatar       *string `json:"avatar,omitempty"`
	Sex          *string `json:"sex,omitempty"`
	Birthday     *string `json:"birthday,omitempty"`
	Country      *string `json:"country,omitempty"`
	Street       *string `json:"street,omitempty"`
	City         *string `json:"city,omitempty"`
	MemberTypeID *string `json:"memberTypeId,omitempty"`
}

func (p ProfilePatch) Apply(pr Profile) Profile {
	set(&pr.Avatar, p.Avatar)
	set(&pr.Sex, p.Sex)
	set(&pr.Birthday, p.Birthday)
	set(&pr.Country, p.Country)
	set(&pr.Street, p.Street)
	set(&pr.City, p.City)
	set(&pr.MemberTypeID, p.MemberTypeID)
	return pr
}

type MemberTypePatch struct {
	Discount        *int `json:"discount,omitempty"`
	MonthPostsLimit *int `json:"monthPostsLimit,omitempty"`
}

func (p MemberTypePatch) Apply(m MemberType) MemberType {
	set(&m.Discount, p.Discount)
	set(&m.MonthPostsLimit, p.MonthPostsLimit)
	return m
}

func set[V any](dst *V, v *V) {
	if v != nil {
		*dst = *v
	}
}
