package sqlinline

const QSelectSubscription = `--sql 2e4a6c8f-0b1d-4f3a-9e5c-7a9b1d3f5e62
select user_id, plan_type, status, expires_at, created_at, updated_at
from subscriptions
where user_id = $1::text;
`

// Conditional so a concurrent renewal is never clobbered by a stale read.
const QDowngradeExpiredSubscription = `--sql f1b3d5e7-9a0c-4e2f-b4a6-8c0e2a4b6d18
update subscriptions
set plan_type = 'free',
    status = 'cancelled',
    updated_at = now()
where user_id = $1::text
  and plan_type <> 'free'
  and expires_at is not null
  and expires_at <= $2::timestamptz;
`

const QUpsertSubscription = `--sql 4d6f8a0c-2e3b-4a5d-8f7c-1e3a5c7e9b24
insert into subscriptions (user_id, plan_type, status, expires_at, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::timestamptz, now(), now())
on conflict (user_id) do update set
    plan_type = excluded.plan_type,
    status = excluded.status,
    expires_at = excluded.expires_at,
    updated_at = now();
`
