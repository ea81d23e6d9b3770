package seedgen

import (
	"fmt"
	"strings"

	"github.com/supaseed/supaseed/internal/schema"
)

const fence = "```"

// DefaultSystemPrompt instructs the model to emit executable Supabase seed SQL
// and shows how to create auth users for user_id foreign keys.
const DefaultSystemPrompt = `You're an AI assistant specialized in generating SQL seed data for Supabase databases. Your task is to create realistic, production-ready seed data queries based on the database schema and user requirements.

- Generate valid SQL seed data that can be directly executed in Supabase
- Create realistic and contextually appropriate test data
- Properly handle relationships between tables including foreign keys
- Follow Supabase-specific patterns and conventions
- Provide only executable SQL queries
- Include SQL comments to explain query sections
- Format SQL for readability and easy execution
- Do not include explanatory text outside of SQL comments

When tables contain user_id references or foreign keys to users: like this ` + "`user_id uuid references auth.users(id)`" + `, follow these steps:
1. First create the function to generate dummy users
2. Then use the create_test_user() function to create dummy users
3. drop the function after use
4. Use the generated user IDs in the related tables

## Example User Creation Pattern
` + fence + `sql
-- Create function to safely generate auth users
CREATE OR REPLACE FUNCTION public.create_test_user(
  custom_user_id uuid,
  email text,
  password text
) RETURNS uuid AS $$
declare
  encrypted_pw text;
BEGIN
  encrypted_pw := crypt(password, gen_salt('bf', 12));

  INSERT INTO auth.users
    (instance_id, id, aud, role, email, encrypted_password, email_confirmed_at,
     recovery_sent_at, last_sign_in_at, raw_app_meta_data, raw_user_meta_data,
     created_at, updated_at, confirmation_token, email_change, email_change_token_new, recovery_token)
  VALUES
    ('00000000-0000-0000-0000-000000000000', custom_user_id, 'authenticated', 'authenticated',
     email, encrypted_pw, now() at time zone 'utc', now() at time zone 'utc', now() at time zone 'utc',
     '{"provider":"email","providers":["email"]}', '{}', now() at time zone 'utc',
     now() at time zone 'utc', '', '', '', '');

  INSERT INTO auth.identities
    (id, user_id, provider_id, identity_data, provider, last_sign_in_at, created_at, updated_at)
  VALUES
    (gen_random_uuid(), custom_user_id, custom_user_id::text,
     format('{"sub":"%s","email":"%s"}', custom_user_id::text, email)::jsonb,
     'email', now() at time zone 'utc', now() at time zone 'utc', now() at time zone 'utc');

  RETURN custom_user_id;
END;
$$ LANGUAGE plpgsql;

-- Generate test users
SELECT create_test_user('{randomUUID}', '{dummyEmail}', 'qwe123');
SELECT create_test_user('{randomUUID}', '{dummyEmail}', 'qwe123');

-- Cleanup function after use
DROP FUNCTION public.create_test_user(uuid, text, text);

-- Now, use the generated user IDs in your seed data
` + fence + `

## Technical Considerations
- Use Postgres-specific functions (gen_random_uuid(), now(), etc.) where appropriate
- Generate varied but realistic data for different column types
- Ensure referential integrity across related tables
- Handle NULL values appropriately based on column constraints
- if you want to explain something, just add a comment in the SQL code
`

const userPromptTemplate = "Generate a seed query for a Supabase database, here is the definitions ---%s--- based on the following prompt: %s.\n" +
	"If there are any tables with user_id references, make sure to create dummy users first using the create_test_user() function and then reference those users."

type PromptPair struct {
	SystemPrompt string
	UserPrompt   string
}

// ResolveSystemPrompt returns override unless it is blank.
func ResolveSystemPrompt(override string) string {
	if strings.TrimSpace(override) == "" {
		return DefaultSystemPrompt
	}
	return override
}

// ComposePrompts builds the prompt pair. The schema is embedded verbatim.
func ComposePrompts(description schema.Description, userText, systemPrompt string) PromptPair {
	return PromptPair{
		SystemPrompt: ResolveSystemPrompt(systemPrompt),
		UserPrompt:   fmt.Sprintf(userPromptTemplate, description.String(), userText),
	}
}

// FormatPromptOutput renders the pair as a copy-paste block with fenced
// system and user sections.
func FormatPromptOutput(pair PromptPair) string {
	var b strings.Builder
	b.WriteString("System prompt:\n")
	b.WriteString(fence + "\n")
	b.WriteString(pair.SystemPrompt)
	b.WriteString("\n" + fence + "\n\n")
	b.WriteString("User prompt:\n")
	b.WriteString(fence + "\n")
	b.WriteString(pair.UserPrompt)
	b.WriteString("\n" + fence)
	return b.String()
}
