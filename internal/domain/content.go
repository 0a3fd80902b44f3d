/**
 * @description
 * Models for the business endpoints served behind bearer auth: the content
 * catalogue, the dashboard, account settings and the nurse patient tools.
 * Field names follow the backend's JSON payloads.
 */
package domain

// Category is a top-level education category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"category"`
	Icon string `json:"icon,omitempty"`
}

// CategoryList is the /users/categories/ payload.
type CategoryList struct {
	Categories []Category `json:"categories"`
}

// Subcategory groups modules inside a category.
type Subcategory struct {
	ID   int    `json:"id"`
	Name string `json:"subcategory"`
}

// SubcategoryList is the /users/{category}/subcategories/ payload.
type SubcategoryList struct {
	Subcategories []Subcategory `json:"subcategories"`
}

// Module is a single video or audio lesson.
type Module struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	MediaType   string `json:"media_type,omitempty"`
	Completed   bool   `json:"isCompleted"`
}

// ModuleList is the /users/{category}/{subcategory}/modules-list/ payload.
type ModuleList struct {
	Videos []Module `json:"videos"`
}

// Task is a daily task shown on the patient dashboard.
type Task struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"isCompleted"`
}

// Quote is the daily quote on the dashboard.
type Quote struct {
	Text string `json:"quote_text"`
}

// WeekData counts completed modules per weekday plus running totals.
type WeekData struct {
	Mon     int `json:"mon"`
	Tues    int `json:"tues"`
	Wed     int `json:"wed"`
	Thur    int `json:"thur"`
	Fri     int `json:"fri"`
	Sat     int `json:"sat"`
	Sun     int `json:"sun"`
	Week    int `json:"week"`
	AllTime int `json:"all_time"`
}

// Dashboard is the patient landing payload.
type Dashboard struct {
	GeneralVideos []Module `json:"generalVideos"`
	Tasks         []Task   `json:"tasks"`
	Quote         *Quote   `json:"quote,omitempty"`
	WeekData      WeekData `json:"weekData"`
}

// CompletionUpdate is posted when a dashboard video finishes.
type CompletionUpdate struct {
	IsCompleted bool `json:"isCompleted"`
}

// UserSettings is the profile returned by /users/user-settings/.
type UserSettings struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ChangePasswordRequest is the body for /users/change-password/.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// DeleteAccountRequest is the body for /users/delete-account/.
type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// PasswordResetRequest is the body for /users/password-reset/.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PatientRegistration is submitted by a nurse to /users/patient/register/.
type PatientRegistration struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// PatientSummary is one row of the nurse patient search.
type PatientSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// PatientGraph is the weekly activity series for one patient.
type PatientGraph struct {
	WeekData WeekData `json:"weekData"`
}
