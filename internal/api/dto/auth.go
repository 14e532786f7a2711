package dto

type SignUpRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Image    *string `json:"image,omitempty"`
}

func (r SignUpRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}
	if r.Name == "" {
		errors["name"] = "Name is required"
	}

	return errors
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SignInRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

// EmailRequest is the body of resend-verification and forgot-password.
type EmailRequest struct {
	Email string `json:"email"`
}

func (r EmailRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	return errors
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

func (r VerifyEmailRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Token == "" {
		errors["token"] = "Token is required"
	}
	return errors
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Token == "" {
		errors["token"] = "Token is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}
	return errors
}
